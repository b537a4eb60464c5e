// Package sqlparse provides statement classification for the enforcement
// pipeline: tokenization with comment stripping and string-literal
// awareness, statement-kind detection, table/column extraction, top-level
// WHERE and LIMIT detection, and the AUTO_LIMIT rewrite.
//
// It is deliberately not a full SQL parser. Classification works on the
// token stream, which is sufficient for policy enforcement and closes the
// comment/string obfuscation vectors a keyword grep would miss.
package sqlparse

// TokenType represents the type of a lexical token.
type TokenType int

// TOKEN_EOF and friends enumerate all token types produced by the lexer.
const (
	TOKEN_EOF     TokenType = iota // end of input
	TOKEN_ILLEGAL                  // unexpected character

	TOKEN_IDENT       // identifier
	TOKEN_NUMBER      // 123, 45.67, 1e10
	TOKEN_STRING      // 'hello'
	TOKEN_PLACEHOLDER // ?, $1, :name

	TOKEN_OP        // any operator (=, <, +, ...)
	TOKEN_DOT       // .
	TOKEN_COMMA     // ,
	TOKEN_SEMICOLON // ;
	TOKEN_LPAREN    // (
	TOKEN_RPAREN    // )
	TOKEN_STAR      // *

	// TOKEN_ALTER and below are SQL keywords.
	TOKEN_ALTER
	TOKEN_AS
	TOKEN_BY
	TOKEN_CREATE
	TOKEN_DELETE
	TOKEN_DROP
	TOKEN_FROM
	TOKEN_GRANT
	TOKEN_GROUP
	TOKEN_HAVING
	TOKEN_INSERT
	TOKEN_INTO
	TOKEN_JOIN
	TOKEN_LIMIT
	TOKEN_OFFSET
	TOKEN_ORDER
	TOKEN_RENAME
	TOKEN_RETURNING
	TOKEN_REVOKE
	TOKEN_SELECT
	TOKEN_SET
	TOKEN_TABLE
	TOKEN_TRUNCATE
	TOKEN_UPDATE
	TOKEN_VALUES
	TOKEN_WHERE
	TOKEN_WITH
)

var keywords = map[string]TokenType{
	"alter":     TOKEN_ALTER,
	"as":        TOKEN_AS,
	"by":        TOKEN_BY,
	"create":    TOKEN_CREATE,
	"delete":    TOKEN_DELETE,
	"drop":      TOKEN_DROP,
	"from":      TOKEN_FROM,
	"grant":     TOKEN_GRANT,
	"group":     TOKEN_GROUP,
	"having":    TOKEN_HAVING,
	"insert":    TOKEN_INSERT,
	"into":      TOKEN_INTO,
	"join":      TOKEN_JOIN,
	"limit":     TOKEN_LIMIT,
	"offset":    TOKEN_OFFSET,
	"order":     TOKEN_ORDER,
	"rename":    TOKEN_RENAME,
	"returning": TOKEN_RETURNING,
	"revoke":    TOKEN_REVOKE,
	"select":    TOKEN_SELECT,
	"set":       TOKEN_SET,
	"table":     TOKEN_TABLE,
	"truncate":  TOKEN_TRUNCATE,
	"update":    TOKEN_UPDATE,
	"values":    TOKEN_VALUES,
	"where":     TOKEN_WHERE,
	"with":      TOKEN_WITH,
}

// lookupKeyword returns the token type for the given lowercase identifier.
// Returns TOKEN_IDENT if it's not a keyword.
func lookupKeyword(ident string) TokenType {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return TOKEN_IDENT
}

// Token represents a lexical token with its literal value.
type Token struct {
	Type    TokenType
	Literal string
}

// isKeyword reports whether t is a SQL keyword token.
func (t TokenType) isKeyword() bool { return t >= TOKEN_ALTER }
