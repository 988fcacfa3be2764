package parser

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heapdom/retain/internal/heapdump/record"
)

func TestParser_Each_ObjectAndRoot(t *testing.T) {
	input := `
{"type":"ROOT","root":"vm","references":["0x1","0x2"]}
{"address":"0x1","type":"STRING","bytes":40,"value":"hello"}
{"address":"0x2","type":"ARRAY","bytes":16,"length":3,"references":["0x3"]}
`
	p := NewParser(nil)
	var recs []record.Record
	err := p.Each(context.Background(), strings.NewReader(input), func(r record.Record) error {
		recs = append(recs, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, recs, 3)

	rootRec, ok := recs[0].(*record.RootRecord)
	require.True(t, ok)
	assert.Equal(t, "vm", rootRec.Category)
	assert.Equal(t, []uint64{1, 2}, rootRec.References)

	strRec, ok := recs[1].(*record.ObjectRecord)
	require.True(t, ok)
	assert.Equal(t, uint64(1), strRec.Address)
	assert.Equal(t, record.TypeString, strRec.Type)
	assert.Equal(t, uint64(40), strRec.Bytes)

	arrRec, ok := recs[2].(*record.ObjectRecord)
	require.True(t, ok)
	assert.Equal(t, uint64(2), arrRec.Address)
	assert.True(t, arrRec.HasLength)
	assert.Equal(t, 3, arrRec.Length)
	assert.Equal(t, []uint64{3}, arrRec.References)
}

func TestParser_UnknownTypeDegradesToOther(t *testing.T) {
	input := `{"address":"0x1","type":"SOME_FUTURE_TYPE","bytes":8}`
	p := NewParser(nil)
	var recs []record.Record
	err := p.Each(context.Background(), strings.NewReader(input), func(r record.Record) error {
		recs = append(recs, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	obj := recs[0].(*record.ObjectRecord)
	assert.Equal(t, record.TypeOther, obj.Type)
}

func TestParser_MalformedLine_NonStrict_Skips(t *testing.T) {
	input := `
{"address":"0x1","type":"STRING","bytes":8}
not a dictionary at all
{"address":"0x2","type":"STRING","bytes":8}
`
	p := NewParser(&Options{StrictMode: false, MaxLineBytes: DefaultMaxLineBytes})
	var recs []record.Record
	err := p.Each(context.Background(), strings.NewReader(input), func(r record.Record) error {
		recs = append(recs, r)
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.Equal(t, 1, p.Stats.RecordsSkipped)
}

func TestParser_MalformedLine_Strict_Fails(t *testing.T) {
	input := `
{"address":"0x1","type":"STRING","bytes":8}
not a dictionary at all
`
	p := NewParser(&Options{StrictMode: true, MaxLineBytes: DefaultMaxLineBytes})
	err := p.Each(context.Background(), strings.NewReader(input), func(r record.Record) error {
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
}

func TestParser_MissingType_Fails(t *testing.T) {
	input := `{"address":"0x1","bytes":8}`
	p := NewParser(&Options{StrictMode: true, MaxLineBytes: DefaultMaxLineBytes})
	err := p.Each(context.Background(), strings.NewReader(input), func(r record.Record) error {
		return nil
	})
	require.Error(t, err)
}

func TestParser_InvalidAddress_Fails(t *testing.T) {
	input := `{"address":"not-hex","type":"STRING","bytes":8}`
	p := NewParser(&Options{StrictMode: true, MaxLineBytes: DefaultMaxLineBytes})
	err := p.Each(context.Background(), strings.NewReader(input), func(r record.Record) error {
		return nil
	})
	require.Error(t, err)
}

func TestParser_ContextCancellation(t *testing.T) {
	input := strings.Repeat("{\"address\":\"0x1\",\"type\":\"STRING\",\"bytes\":8}\n", 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewParser(nil)
	err := p.Each(ctx, strings.NewReader(input), func(r record.Record) error {
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, context.Canceled, err)
}

func TestParser_ClassAndName(t *testing.T) {
	input := `
{"address":"0x1","type":"CLASS","bytes":0,"name":"Foo"}
{"address":"0x2","type":"OBJECT","bytes":24,"class":"0x1"}
`
	p := NewParser(nil)
	var recs []record.Record
	err := p.Each(context.Background(), strings.NewReader(input), func(r record.Record) error {
		recs = append(recs, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, recs, 2)

	classObj := recs[0].(*record.ObjectRecord)
	assert.Equal(t, "Foo", classObj.Name)

	obj := recs[1].(*record.ObjectRecord)
	assert.True(t, obj.HasClass)
	assert.Equal(t, uint64(1), obj.Class)
}
