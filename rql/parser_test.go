package rql

import (
	"reflect"
	"testing"

	"github.com/aep/cursorkv/level"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLexer(t *testing.T) {
	tests := []struct {
		input    string
		expected []Token
	}{
		{
			"key>=a",
			[]Token{
				{TOKEN_IDENT, "key"},
				{TOKEN_GREATER_EQUAL, ">="},
				{TOKEN_IDENT, "a"},
				{TOKEN_EOF, ""},
			},
		},
		{
			`(key>"b", key<"d e") limit=2`,
			[]Token{
				{TOKEN_LPAREN, "("},
				{TOKEN_IDENT, "key"},
				{TOKEN_GREATER, ">"},
				{TOKEN_STRING, "b"},
				{TOKEN_COMMA, ","},
				{TOKEN_IDENT, "key"},
				{TOKEN_LESS, "<"},
				{TOKEN_STRING, "d e"},
				{TOKEN_RPAREN, ")"},
				{TOKEN_IDENT, "limit"},
				{TOKEN_EQUALS, "="},
				{TOKEN_IDENT, "2"},
				{TOKEN_EOF, ""},
			},
		},
		{
			"key^user/1 key<=z",
			[]Token{
				{TOKEN_IDENT, "key"},
				{TOKEN_PREFIX, "^"},
				{TOKEN_IDENT, "user/1"},
				{TOKEN_IDENT, "key"},
				{TOKEN_LESS_EQUAL, "<="},
				{TOKEN_IDENT, "z"},
				{TOKEN_EOF, ""},
			},
		},
		{
			`key<"open`,
			[]Token{
				{TOKEN_IDENT, "key"},
				{TOKEN_LESS, "<"},
				{TOKEN_ILLEGAL, ""},
				{TOKEN_EOF, ""},
			},
		},
	}

	for i, tt := range tests {
		l := NewLexer(tt.input)
		tokens := []Token{}
		for {
			tok := l.NextToken()
			tokens = append(tokens, tok)
			if tok.Type == TOKEN_EOF {
				break
			}
		}

		if !reflect.DeepEqual(tokens, tt.expected) {
			t.Errorf("test %d: wrong tokens.\nexpected=%+v\ngot=%+v",
				i, tt.expected, tokens)
		}
	}
}

func str(s string) *string { return &s }

func TestParser(t *testing.T) {
	tests := []struct {
		input       string
		expected    *Query
		shouldError bool
	}{
		{input: "", expected: &Query{}},
		{input: "()", expected: &Query{}},
		{input: "key>a", expected: &Query{Gt: str("a")}},
		{input: `key>="b" key<"d"`, expected: &Query{Gte: str("b"), Lt: str("d")}},
		{input: "(key>b, key<=d, limit=3)", expected: &Query{Gt: str("b"), Lte: str("d"), Limit: 3}},
		{input: "key^user/ raw nobuffer", expected: &Query{Prefix: str("user/"), Raw: true, NoBuffer: true}},
		{input: "key>a key>=b", shouldError: true},
		{input: "key<a key<=b", shouldError: true},
		{input: "key^a key<b", shouldError: true},
		{input: "key>a key^b", shouldError: true},
		{input: "key=a", shouldError: true},
		{input: "value>a", shouldError: true},
		{input: "key>", shouldError: true},
		{input: "limit=x", shouldError: true},
		{input: "limit=1 limit=2", shouldError: true},
		{input: "(key>a) limit=2 raw", expected: &Query{Gt: str("a"), Limit: 2, Raw: true}},
		{input: "raw (key<z)", expected: &Query{Lt: str("z"), Raw: true}},
		{input: "(key>a) (key<z)", expected: &Query{Gt: str("a"), Lt: str("z")}},
		{input: "(key>a", shouldError: true},
		{input: "((key>a))", shouldError: true},
		{input: "key>a)", shouldError: true},
		{input: `key>"a`, shouldError: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			q, err := Parse(tt.input)
			if tt.shouldError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, q)
		})
	}
}

func TestQueryString(t *testing.T) {
	q, err := Parse(`(key>=b,key<d) limit=2 raw`)
	require.NoError(t, err)
	assert.Equal(t, `key>="b" key<"d" limit=2 raw`, q.String())

	again, err := Parse(q.String())
	require.NoError(t, err)
	assert.Equal(t, q, again)
}

func TestSuccessor(t *testing.T) {
	assert.Equal(t, "b", successor("a"))
	assert.Equal(t, "user0", successor("user/"))
	assert.Equal(t, "b", successor("a\xff\xff"))
	assert.Equal(t, "", successor("\xff"))
	assert.Equal(t, "", successor(""))
}

func TestIteratorOptions(t *testing.T) {
	q, err := Parse("key^user/ limit=5 nobuffer")
	require.NoError(t, err)
	o := q.IteratorOptions()
	assert.Equal(t, level.Text("user/"), o.Gte)
	assert.Equal(t, level.Text("user0"), o.Lt)
	assert.True(t, o.Gt.IsZero())
	assert.Equal(t, 5, o.Limit)
	assert.True(t, o.NoBuffer)

	q, err = Parse("key>a key<=c")
	require.NoError(t, err)
	o = q.IteratorOptions()
	assert.Equal(t, level.Text("a"), o.Gt)
	assert.Equal(t, level.Text("c"), o.Lte)
	assert.True(t, o.Gte.IsZero())
}
