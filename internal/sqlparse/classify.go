package sqlparse

import (
	"sort"
	"strings"

	"sqlguard/internal/domain"
)

// StatementKind is the classified kind of a SQL statement.
type StatementKind string

// Statement kinds.
const (
	KindSelect StatementKind = "SELECT"
	KindInsert StatementKind = "INSERT"
	KindUpdate StatementKind = "UPDATE"
	KindDelete StatementKind = "DELETE"
	KindDDL    StatementKind = "DDL"
	KindOther  StatementKind = "OTHER"
)

// Param is one parameter placeholder found in a statement, in order of
// appearance.
type Param struct {
	Name string // "?", "$1", or the name after ":"
	Type string // inferred: "int" or "string"
}

// Statement is the structured description of a single classified statement.
// Ephemeral: produced per request, never persisted as-is.
type Statement struct {
	Kind     StatementKind
	Verb     string   // the leading keyword, e.g. "DROP" for DDL
	Tables   []string // sorted, deduplicated
	Columns  []string // sorted, deduplicated; empty for SELECT *
	Star     bool     // SELECT * (result columns unknown until execution)
	HasWhere bool     // top-level WHERE of UPDATE/DELETE only
	HasLimit bool     // top-level LIMIT
	Params   []Param
	Raw      string
}

// dangerousFunctions is the blocklist of functions that read the filesystem,
// run commands, or leak server internals. Calls to these fail classification.
var dangerousFunctions = map[string]bool{
	"load_file":      true,
	"xp_cmdshell":    true,
	"sp_executesql":  true,
	"sys_exec":       true,
	"sys_eval":       true,
	"pg_read_file":   true,
	"pg_sleep":       true,
	"benchmark":      true,
	"extractvalue":   true,
	"updatexml":      true,
	"dbms_pipe":      true,
	"read_csv":       true,
	"read_csv_auto":  true,
	"read_parquet":   true,
	"read_json_auto": true,
}

var ddlVerbs = map[TokenType]bool{
	TOKEN_CREATE:   true,
	TOKEN_DROP:     true,
	TOKEN_ALTER:    true,
	TOKEN_TRUNCATE: true,
	TOKEN_RENAME:   true,
	TOKEN_GRANT:    true,
	TOKEN_REVOKE:   true,
}

// lexeme is a token annotated with its paren depth.
type lexeme struct {
	tok   Token
	depth int
}

// Classify turns raw SQL text into a Statement description.
//
// Fails with SYNTAX_ERROR for empty or malformed input, MULTI_STATEMENT for
// ";"-separated batches (one trailing semicolon is tolerated), and
// PROHIBITED_FUNCTION for calls on the dangerous-function blocklist.
// Pure function: no side effects.
func Classify(raw string) (*Statement, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, domain.ErrValidationCode(domain.CodeSyntaxError, "empty statement")
	}

	lexemes, err := lexAll(raw)
	if err != nil {
		return nil, err
	}
	if len(lexemes) == 0 {
		return nil, domain.ErrValidationCode(domain.CodeSyntaxError, "empty statement")
	}

	stmt := &Statement{Kind: KindOther, Raw: raw}

	// Leading statement verb at paren depth 0. CTE bodies sit inside
	// parens, so "WITH x AS (...) UPDATE ..." classifies as UPDATE.
	for _, lx := range lexemes {
		if lx.depth != 0 || !lx.tok.Type.isKeyword() {
			continue
		}
		if lx.tok.Type == TOKEN_WITH || lx.tok.Type == TOKEN_AS {
			continue
		}
		switch {
		case lx.tok.Type == TOKEN_SELECT:
			stmt.Kind = KindSelect
		case lx.tok.Type == TOKEN_INSERT:
			stmt.Kind = KindInsert
		case lx.tok.Type == TOKEN_UPDATE:
			stmt.Kind = KindUpdate
		case lx.tok.Type == TOKEN_DELETE:
			stmt.Kind = KindDelete
		case ddlVerbs[lx.tok.Type]:
			stmt.Kind = KindDDL
		}
		if stmt.Kind != KindOther {
			stmt.Verb = strings.ToUpper(lx.tok.Literal)
			break
		}
		// An unrecognised leading keyword (e.g. VALUES) leaves KindOther.
		break
	}

	collectClauses(stmt, lexemes)
	collectTables(stmt, lexemes)
	collectColumns(stmt, lexemes)
	collectParams(stmt, lexemes)

	if name, found := prohibitedCall(lexemes); found {
		return nil, domain.ErrValidationCode(domain.CodeProhibitedFunction, "prohibited function: %s", name)
	}

	return stmt, nil
}

// lexAll tokenizes the whole input, tracking paren depth and rejecting
// illegal characters and multi-statement batches.
func lexAll(raw string) ([]lexeme, error) {
	l := NewLexer(raw)
	var out []lexeme
	depth := 0
	for {
		tok := l.NextToken()
		if tok.Type == TOKEN_EOF {
			break
		}
		switch tok.Type {
		case TOKEN_ILLEGAL:
			return nil, domain.ErrValidationCode(domain.CodeSyntaxError, "unexpected character %q", tok.Literal)
		case TOKEN_LPAREN:
			out = append(out, lexeme{tok, depth})
			depth++
			continue
		case TOKEN_RPAREN:
			depth--
			if depth < 0 {
				return nil, domain.ErrValidationCode(domain.CodeSyntaxError, "unbalanced parentheses")
			}
			out = append(out, lexeme{tok, depth})
			continue
		case TOKEN_SEMICOLON:
			// A semicolon only terminates the input; anything after it is
			// a smuggled second statement.
			if rest := l.NextToken(); rest.Type != TOKEN_EOF {
				return nil, domain.ErrValidationCode(domain.CodeMultiStatement, "multi-statement input is not allowed")
			}
			if depth != 0 {
				return nil, domain.ErrValidationCode(domain.CodeSyntaxError, "unbalanced parentheses")
			}
			return out, nil
		}
		out = append(out, lexeme{tok, depth})
	}
	if depth != 0 {
		return nil, domain.ErrValidationCode(domain.CodeSyntaxError, "unbalanced parentheses")
	}
	return out, nil
}

// collectClauses sets HasWhere and HasLimit from depth-0 clause keywords.
// WHERE inside a subquery does not count.
func collectClauses(stmt *Statement, lexemes []lexeme) {
	for _, lx := range lexemes {
		if lx.depth != 0 {
			continue
		}
		switch lx.tok.Type {
		case TOKEN_WHERE:
			if stmt.Kind == KindUpdate || stmt.Kind == KindDelete {
				stmt.HasWhere = true
			}
		case TOKEN_LIMIT:
			stmt.HasLimit = true
		}
	}
}

// collectTables extracts table names referenced after FROM, JOIN, INTO,
// UPDATE, and TABLE keywords at any depth (subqueries reference tables too).
func collectTables(stmt *Statement, lexemes []lexeme) {
	seen := map[string]bool{}
	for i := 0; i < len(lexemes); i++ {
		switch lexemes[i].tok.Type {
		case TOKEN_FROM, TOKEN_JOIN, TOKEN_INTO, TOKEN_UPDATE, TOKEN_TABLE:
		default:
			continue
		}
		// DELETE FROM is handled by FROM; "UPDATE t" by UPDATE itself.
		j := i + 1
		for j < len(lexemes) {
			name, next := readQualifiedName(lexemes, j)
			if name == "" {
				break
			}
			if !seen[name] {
				seen[name] = true
				stmt.Tables = append(stmt.Tables, name)
			}
			// Optional alias, then a comma continues a FROM list.
			j = next
			if j < len(lexemes) && lexemes[j].tok.Type == TOKEN_AS {
				j++
			}
			if j < len(lexemes) && lexemes[j].tok.Type == TOKEN_IDENT {
				j++
			}
			if lexemes[i].tok.Type == TOKEN_FROM &&
				j < len(lexemes) && lexemes[j].tok.Type == TOKEN_COMMA {
				j++
				continue
			}
			break
		}
	}
	sort.Strings(stmt.Tables)
}

// readQualifiedName reads ident(.ident)* starting at index j.
// Returns the dotted name and the index after it, or ("", j).
func readQualifiedName(lexemes []lexeme, j int) (string, int) {
	if j >= len(lexemes) || lexemes[j].tok.Type != TOKEN_IDENT {
		return "", j
	}
	parts := []string{lexemes[j].tok.Literal}
	j++
	for j+1 < len(lexemes) &&
		lexemes[j].tok.Type == TOKEN_DOT &&
		lexemes[j+1].tok.Type == TOKEN_IDENT {
		parts = append(parts, lexemes[j+1].tok.Literal)
		j += 2
	}
	return strings.Join(parts, "."), j
}

// collectColumns extracts referenced column names: the select list for
// SELECT, the SET targets for UPDATE, and the column list for INSERT.
// Qualified references keep only the column segment.
func collectColumns(stmt *Statement, lexemes []lexeme) {
	seen := map[string]bool{}
	add := func(name string) {
		if name == "" || seen[name] || selectListNoise[strings.ToLower(name)] {
			return
		}
		seen[name] = true
		stmt.Columns = append(stmt.Columns, name)
	}

	switch stmt.Kind {
	case KindSelect:
		inList := false
		listDepth := 0
		for i := 0; i < len(lexemes); i++ {
			lx := lexemes[i]
			if !inList {
				if lx.tok.Type == TOKEN_SELECT {
					inList = true
					listDepth = lx.depth
				}
				continue
			}
			if lx.tok.Type == TOKEN_FROM && lx.depth == listDepth {
				break
			}
			switch lx.tok.Type {
			case TOKEN_STAR:
				// count(*) inside a call is not a select-star
				if lx.depth == listDepth {
					stmt.Star = true
				}
			case TOKEN_IDENT:
				// Skip function names and aliases after AS.
				if i+1 < len(lexemes) && lexemes[i+1].tok.Type == TOKEN_LPAREN {
					continue
				}
				if i > 0 && lexemes[i-1].tok.Type == TOKEN_AS {
					continue
				}
				name, next := readQualifiedName(lexemes, i)
				// t.* means "all columns of t"
				if next+1 < len(lexemes) &&
					lexemes[next].tok.Type == TOKEN_DOT &&
					lexemes[next+1].tok.Type == TOKEN_STAR {
					stmt.Star = true
					i = next + 1
					continue
				}
				parts := strings.Split(name, ".")
				add(parts[len(parts)-1])
				i = next - 1
			}
		}
	case KindUpdate:
		inSet := false
		for i := 0; i < len(lexemes); i++ {
			lx := lexemes[i]
			if lx.depth != 0 {
				continue
			}
			switch lx.tok.Type {
			case TOKEN_SET:
				inSet = true
				continue
			case TOKEN_WHERE, TOKEN_RETURNING:
				inSet = false
			}
			if inSet && lx.tok.Type == TOKEN_IDENT &&
				i+1 < len(lexemes) && lexemes[i+1].tok.Type == TOKEN_OP && lexemes[i+1].tok.Literal == "=" {
				add(lx.tok.Literal)
			}
		}
	case KindInsert:
		// INSERT INTO t (c1, c2, ...) — the first paren group before VALUES/SELECT.
		for i := 0; i < len(lexemes); i++ {
			if lexemes[i].tok.Type != TOKEN_LPAREN || lexemes[i].depth != 0 {
				continue
			}
			for j := i + 1; j < len(lexemes); j++ {
				if lexemes[j].tok.Type == TOKEN_RPAREN && lexemes[j].depth == 0 {
					i = len(lexemes)
					break
				}
				if lexemes[j].tok.Type == TOKEN_IDENT {
					add(lexemes[j].tok.Literal)
				}
			}
		}
	}
	sort.Strings(stmt.Columns)
}

// collectParams records placeholders in order of appearance. Types are
// inferred conservatively: placeholders bound to LIMIT/OFFSET are ints,
// everything else defaults to string.
func collectParams(stmt *Statement, lexemes []lexeme) {
	for i, lx := range lexemes {
		if lx.tok.Type != TOKEN_PLACEHOLDER {
			continue
		}
		p := Param{Name: lx.tok.Literal, Type: "string"}
		if strings.HasPrefix(p.Name, ":") {
			p.Name = p.Name[1:]
		}
		if i > 0 {
			switch lexemes[i-1].tok.Type {
			case TOKEN_LIMIT, TOKEN_OFFSET:
				p.Type = "int"
			}
		}
		stmt.Params = append(stmt.Params, p)
	}
}

// selectListNoise lists non-column identifiers that appear in select-list
// expressions and must not be mistaken for column references.
var selectListNoise = map[string]bool{
	"distinct": true, "all": true, "case": true, "when": true,
	"then": true, "else": true, "end": true, "and": true, "or": true,
	"not": true, "null": true, "is": true, "in": true, "like": true,
	"between": true, "true": true, "false": true, "interval": true,
}

// prohibitedCall returns the first blocklisted function call in the input.
func prohibitedCall(lexemes []lexeme) (string, bool) {
	for i := 0; i+1 < len(lexemes); i++ {
		if lexemes[i].tok.Type == TOKEN_IDENT &&
			lexemes[i+1].tok.Type == TOKEN_LPAREN &&
			dangerousFunctions[strings.ToLower(lexemes[i].tok.Literal)] {
			return strings.ToLower(lexemes[i].tok.Literal), true
		}
	}
	return "", false
}
