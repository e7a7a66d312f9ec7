// Package sql implements the lexer, AST and parser for the system's
// recognized SQL subset (§4.E stage 1-2): SELECT/INSERT/UPDATE/DELETE with
// FROM, WHERE (a DNF of AND-groups), JOIN variants, GROUP BY and ORDER BY.
package sql

// Kind tags a token. The kind shape follows the same enum-plus-lexeme style
// as other_examples' tsqlparser token definitions, generalized to this
// system's recognized keyword set.
type Kind int

const (
	EOF Kind = iota
	ILLEGAL

	IDENT
	NUMBER
	STRING

	// Keywords
	SELECT
	INSERT
	UPDATE
	DELETE
	FROM
	INTO
	VALUES
	SET
	WHERE
	JOIN
	INNER
	LEFT
	RIGHT
	FULL
	ON
	GROUP
	ORDER
	BY
	ASC
	DESC
	AND
	OR

	// Punctuation and operators
	COMMA
	LPAREN
	RPAREN
	STAR
	SEMICOLON
	EQ
	NEQ
	LT
	GT
	LE
	GE
)

var keywords = map[string]Kind{
	"SELECT": SELECT, "INSERT": INSERT, "UPDATE": UPDATE, "DELETE": DELETE,
	"FROM": FROM, "INTO": INTO, "VALUES": VALUES, "SET": SET, "WHERE": WHERE,
	"JOIN": JOIN, "INNER": INNER, "LEFT": LEFT, "RIGHT": RIGHT, "FULL": FULL,
	"ON": ON, "GROUP": GROUP, "ORDER": ORDER, "BY": BY, "ASC": ASC, "DESC": DESC,
	"AND": AND, "OR": OR,
}

// Token is one lexed unit: its kind and the literal text it was scanned
// from (for IDENT/NUMBER/STRING, the meaningful payload).
type Token struct {
	Kind    Kind
	Literal string
	Pos     int
}
