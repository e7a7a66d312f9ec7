package sql

import (
	"fmt"
	"strconv"
	"strings"

	"mdbms/pkg/storage"
)

// Parser is a recursive-descent parser over the token stream produced by
// Lexer, building a Query (stage 2 of the optimizer pipeline, §4.E).
type Parser struct {
	tokens []Token
	pos    int
}

// Parse lexes and parses src into a Query.
func Parse(src string) (*Query, error) {
	p := &Parser{tokens: NewLexer(src).Tokenize()}
	return p.parseStatement()
}

func (p *Parser) cur() Token  { return p.tokens[p.pos] }
func (p *Parser) advance() Token {
	t := p.tokens[p.pos]
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) expect(kind Kind) (Token, error) {
	if p.cur().Kind != kind {
		return Token{}, fmt.Errorf("sql: unexpected token %q at position %d", p.cur().Literal, p.cur().Pos)
	}
	return p.advance(), nil
}

func (p *Parser) match(kind Kind) bool {
	if p.cur().Kind == kind {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) parseStatement() (*Query, error) {
	switch p.cur().Kind {
	case SELECT:
		return p.parseSelect()
	case INSERT:
		return p.parseInsert()
	case UPDATE:
		return p.parseUpdate()
	case DELETE:
		return p.parseDelete()
	default:
		return nil, fmt.Errorf("sql: statement must begin with SELECT, INSERT, UPDATE or DELETE, got %q", p.cur().Literal)
	}
}

func (p *Parser) parseSelect() (*Query, error) {
	p.advance() // SELECT
	q := &Query{Kind: Select}

	if p.match(STAR) {
		q.Columns = []string{"*"}
	} else {
		cols, err := p.parseIdentList()
		if err != nil {
			return nil, err
		}
		q.Columns = cols
	}

	if _, err := p.expect(FROM); err != nil {
		return nil, err
	}
	tableTok, err := p.expect(IDENT)
	if err != nil {
		return nil, err
	}
	q.Table = tableTok.Literal

	for p.atJoinStart() {
		join, err := p.parseJoin()
		if err != nil {
			return nil, err
		}
		q.Joins = append(q.Joins, join)
	}

	if p.match(WHERE) {
		cond, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		q.Where = cond
	}

	if p.match(GROUP) {
		if _, err := p.expect(BY); err != nil {
			return nil, err
		}
		cols, err := p.parseIdentList()
		if err != nil {
			return nil, err
		}
		q.GroupBy = cols
	}

	if p.match(ORDER) {
		if _, err := p.expect(BY); err != nil {
			return nil, err
		}
		items, err := p.parseOrderByList()
		if err != nil {
			return nil, err
		}
		q.OrderBy = items
	}

	p.match(SEMICOLON)
	return q, nil
}

func (p *Parser) atJoinStart() bool {
	switch p.cur().Kind {
	case JOIN, INNER, LEFT, RIGHT, FULL:
		return true
	default:
		return false
	}
}

func (p *Parser) parseJoin() (JoinClause, error) {
	joinType := InnerJoin
	switch p.cur().Kind {
	case INNER:
		p.advance()
	case LEFT:
		p.advance()
		joinType = LeftJoin
	case RIGHT:
		p.advance()
		joinType = RightJoin
	case FULL:
		p.advance()
		joinType = FullJoin
	}
	if _, err := p.expect(JOIN); err != nil {
		return JoinClause{}, err
	}
	tableTok, err := p.expect(IDENT)
	if err != nil {
		return JoinClause{}, err
	}
	if _, err := p.expect(ON); err != nil {
		return JoinClause{}, err
	}
	leftTok, err := p.expect(IDENT)
	if err != nil {
		return JoinClause{}, err
	}
	if _, err := p.expect(EQ); err != nil {
		return JoinClause{}, err
	}
	rightTok, err := p.expect(IDENT)
	if err != nil {
		return JoinClause{}, err
	}
	return JoinClause{Type: joinType, Table: tableTok.Literal, LeftColumn: unqualify(leftTok.Literal), RightColumn: unqualify(rightTok.Literal)}, nil
}

// unqualify strips a leading "table." qualifier from an ON-clause operand:
// Row.Values is keyed by bare column name (pkg/storage/row.go), so
// "accounts.id" must become "id" before it can ever match a row.
func unqualify(ident string) string {
	if i := strings.LastIndexByte(ident, '.'); i >= 0 {
		return ident[i+1:]
	}
	return ident
}

func (p *Parser) parseInsert() (*Query, error) {
	p.advance() // INSERT
	if _, err := p.expect(INTO); err != nil {
		return nil, err
	}
	tableTok, err := p.expect(IDENT)
	if err != nil {
		return nil, err
	}
	q := &Query{Kind: Insert, Table: tableTok.Literal}

	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	cols, err := p.parseIdentList()
	if err != nil {
		return nil, err
	}
	q.Columns = cols
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}

	if _, err := p.expect(VALUES); err != nil {
		return nil, err
	}
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	values, err := p.parseLiteralList()
	if err != nil {
		return nil, err
	}
	q.InsertValues = values
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	if len(q.Columns) != len(q.InsertValues) {
		return nil, fmt.Errorf("sql: insert column count (%d) does not match value count (%d)", len(q.Columns), len(q.InsertValues))
	}

	p.match(SEMICOLON)
	return q, nil
}

func (p *Parser) parseUpdate() (*Query, error) {
	p.advance() // UPDATE
	tableTok, err := p.expect(IDENT)
	if err != nil {
		return nil, err
	}
	q := &Query{Kind: Update, Table: tableTok.Literal, Assignments: make(map[string]storage.Value)}

	if _, err := p.expect(SET); err != nil {
		return nil, err
	}
	for {
		colTok, err := p.expect(IDENT)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(EQ); err != nil {
			return nil, err
		}
		val, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		q.Assignments[colTok.Literal] = val
		if !p.match(COMMA) {
			break
		}
	}

	if p.match(WHERE) {
		cond, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		q.Where = cond
	}
	p.match(SEMICOLON)
	return q, nil
}

func (p *Parser) parseDelete() (*Query, error) {
	p.advance() // DELETE
	if _, err := p.expect(FROM); err != nil {
		return nil, err
	}
	tableTok, err := p.expect(IDENT)
	if err != nil {
		return nil, err
	}
	q := &Query{Kind: Delete, Table: tableTok.Literal}
	if p.match(WHERE) {
		cond, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		q.Where = cond
	}
	p.match(SEMICOLON)
	return q, nil
}

func (p *Parser) parseIdentList() ([]string, error) {
	var names []string
	for {
		tok, err := p.expect(IDENT)
		if err != nil {
			return nil, err
		}
		names = append(names, unqualify(tok.Literal))
		if !p.match(COMMA) {
			return names, nil
		}
	}
}

func (p *Parser) parseOrderByList() ([]OrderByItem, error) {
	var items []OrderByItem
	for {
		tok, err := p.expect(IDENT)
		if err != nil {
			return nil, err
		}
		item := OrderByItem{Column: unqualify(tok.Literal)}
		if p.match(DESC) {
			item.Desc = true
		} else {
			p.match(ASC)
		}
		items = append(items, item)
		if !p.match(COMMA) {
			return items, nil
		}
	}
}

func (p *Parser) parseLiteralList() ([]storage.Value, error) {
	var values []storage.Value
	for {
		v, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		if !p.match(COMMA) {
			return values, nil
		}
	}
}

func (p *Parser) parseLiteral() (storage.Value, error) {
	switch p.cur().Kind {
	case STRING:
		tok := p.advance()
		return storage.StringValue(tok.Literal), nil
	case NUMBER:
		tok := p.advance()
		return parseNumberLiteral(tok.Literal)
	default:
		return storage.Value{}, fmt.Errorf("sql: expected a literal, got %q", p.cur().Literal)
	}
}

func parseNumberLiteral(text string) (storage.Value, error) {
	if strings.Contains(text, ".") {
		f, err := strconv.ParseFloat(text, 32)
		if err != nil {
			return storage.Value{}, fmt.Errorf("sql: invalid float literal %q: %w", text, err)
		}
		return storage.FloatValue(float32(f)), nil
	}
	n, err := strconv.ParseInt(text, 10, 32)
	if err != nil {
		return storage.Value{}, fmt.Errorf("sql: invalid integer literal %q: %w", text, err)
	}
	return storage.IntValue(int32(n)), nil
}

// parseCondition parses a DNF where-clause: OR-separated AND-groups of
// comparisons.
func (p *Parser) parseCondition() (*storage.Condition, error) {
	first, err := p.parseConjunction()
	if err != nil {
		return nil, err
	}
	disjuncts := []storage.Conjunction{first}
	for p.match(OR) {
		next, err := p.parseConjunction()
		if err != nil {
			return nil, err
		}
		disjuncts = append(disjuncts, next)
	}
	return &storage.Condition{Disjuncts: disjuncts}, nil
}

func (p *Parser) parseConjunction() (storage.Conjunction, error) {
	first, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	conj := storage.Conjunction{first}
	for p.match(AND) {
		next, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		conj = append(conj, next)
	}
	return conj, nil
}

func (p *Parser) parseComparison() (storage.Comparison, error) {
	left, err := p.parseOperand()
	if err != nil {
		return storage.Comparison{}, err
	}
	op, err := p.parseCompareOp()
	if err != nil {
		return storage.Comparison{}, err
	}
	right, err := p.parseOperand()
	if err != nil {
		return storage.Comparison{}, err
	}
	return storage.Comparison{Left: left, Op: op, Right: right}, nil
}

func (p *Parser) parseOperand() (storage.Operand, error) {
	switch p.cur().Kind {
	case IDENT:
		tok := p.advance()
		return storage.ColumnOperand(unqualify(tok.Literal)), nil
	case STRING, NUMBER:
		v, err := p.parseLiteral()
		if err != nil {
			return storage.Operand{}, err
		}
		return storage.LiteralOperand(v), nil
	default:
		return storage.Operand{}, fmt.Errorf("sql: expected column or literal, got %q", p.cur().Literal)
	}
}

func (p *Parser) parseCompareOp() (storage.CompareOp, error) {
	switch p.cur().Kind {
	case EQ:
		p.advance()
		return storage.OpEq, nil
	case NEQ:
		p.advance()
		return storage.OpNeq, nil
	case GT:
		p.advance()
		return storage.OpGt, nil
	case GE:
		p.advance()
		return storage.OpGte, nil
	case LT:
		p.advance()
		return storage.OpLt, nil
	case LE:
		p.advance()
		return storage.OpLte, nil
	default:
		return 0, fmt.Errorf("sql: expected a relational operator, got %q", p.cur().Literal)
	}
}
