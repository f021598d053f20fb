package rename

import (
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/safemigrate/safemigrate/internal/errdefs"
	"github.com/safemigrate/safemigrate/internal/identifier"
)

// RewriteTableReferences replaces every identifier equal to oldName in the
// statement with newName. The input must parse as SQL: malformed input is
// rejected rather than substituted unsafely. Substitution is token-based,
// so names inside string literals and comments are untouched and quoted
// identifiers keep their quoting.
func RewriteTableReferences(sql, oldName, newName string) (string, error) {
	if err := identifier.ValidateAll(map[string]string{
		"current table": oldName,
		"new table":     newName,
	}); err != nil {
		return "", err
	}
	if _, err := pg_query.Parse(sql); err != nil {
		return "", errdefs.ValidationError.Wrap(err, "refusing to rewrite unparseable SQL")
	}

	scanned, err := pg_query.Scan(sql)
	if err != nil {
		return "", errdefs.ValidationError.Wrap(err, "failed to tokenize SQL")
	}

	var out strings.Builder
	last := 0
	for _, token := range scanned.GetTokens() {
		if token.Token != pg_query.Token_IDENT {
			continue
		}
		start, end := int(token.Start), int(token.End)
		if start < last || end > len(sql) {
			continue
		}
		text := sql[start:end]
		name, quoted := unquoteIdent(text)
		if name != oldName {
			continue
		}
		out.WriteString(sql[last:start])
		if quoted {
			out.WriteString(`"` + newName + `"`)
		} else {
			out.WriteString(newName)
		}
		last = end
	}
	out.WriteString(sql[last:])
	return out.String(), nil
}

func unquoteIdent(text string) (name string, quoted bool) {
	if len(text) >= 2 && strings.HasPrefix(text, `"`) && strings.HasSuffix(text, `"`) {
		return strings.ReplaceAll(text[1:len(text)-1], `""`, `"`), true
	}
	return text, false
}
