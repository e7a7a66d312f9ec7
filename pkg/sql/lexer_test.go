package sql

import "testing"

// TestLexerTokenizesBasicSelect checks keyword recognition, identifiers and
// punctuation in one pass.
func TestLexerTokenizesBasicSelect(t *testing.T) {
	tokens := NewLexer("SELECT * FROM accounts;").Tokenize()
	want := []Kind{SELECT, STAR, FROM, IDENT, SEMICOLON, EOF}
	if len(tokens) != len(want) {
		t.Fatalf("got %d tokens, want %d: %+v", len(tokens), len(want), tokens)
	}
	for i, k := range want {
		if tokens[i].Kind != k {
			t.Errorf("token %d kind = %v, want %v", i, tokens[i].Kind, k)
		}
	}
}

// TestLexerScansQuotedStringWithEscapedQuote checks the doubled-single-
// quote escape convention.
func TestLexerScansQuotedStringWithEscapedQuote(t *testing.T) {
	tokens := NewLexer("'it''s'").Tokenize()
	if tokens[0].Kind != STRING || tokens[0].Literal != "it's" {
		t.Errorf("unexpected token: %+v", tokens[0])
	}
}

// TestLexerScansFloatLiteral checks the decimal-point number path.
func TestLexerScansFloatLiteral(t *testing.T) {
	tokens := NewLexer("12.5").Tokenize()
	if tokens[0].Kind != NUMBER || tokens[0].Literal != "12.5" {
		t.Errorf("unexpected token: %+v", tokens[0])
	}
}

// TestLexerMultiCharOperators checks <=, >=, <> are scanned as single
// tokens rather than two separate ones.
func TestLexerMultiCharOperators(t *testing.T) {
	cases := map[string]Kind{"<=": LE, ">=": GE, "<>": NEQ}
	for text, kind := range cases {
		tokens := NewLexer(text).Tokenize()
		if tokens[0].Kind != kind {
			t.Errorf("%q lexed as %v, want %v", text, tokens[0].Kind, kind)
		}
	}
}

// TestLexerUnterminatedStringIsIllegal reports an ILLEGAL token rather than
// looping forever.
func TestLexerUnterminatedStringIsIllegal(t *testing.T) {
	tokens := NewLexer("'unterminated").Tokenize()
	if tokens[0].Kind != ILLEGAL {
		t.Errorf("expected ILLEGAL for an unterminated string, got %v", tokens[0].Kind)
	}
}
