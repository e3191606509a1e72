package mcpserver

// QueryGrammar describes the query language accepted by query_collection
// and the HTTP items endpoint.
const QueryGrammar = `# Quarry Query Grammar

A query is a set of parameters joined by ` + "`&`" + `. Each parameter may be
written with or without a leading ` + "`$`" + ` and may appear at most once.

| Parameter | Meaning |
|-----------|---------|
| ` + "`filter`" + `  | boolean expression selecting items |
| ` + "`orderby`" + ` | comma separated sort keys, each optionally followed by ` + "`asc`" + ` or ` + "`desc`" + ` |
| ` + "`top`" + `     | page size, 1..max page size (default: max page size) |
| ` + "`skip`" + `    | number of matching items to skip, >= 0 |
| ` + "`select`" + `  | comma separated fields to return; ` + "`body`" + ` includes the body |

## Filter expressions

` + "```" + `
expr       = or
or         = and { "or" and }
and        = unary { "and" unary }
unary      = "not" unary | "(" expr ")" | comparison
comparison = operand op literal
operand    = field | field "[" index "]" | "tolower(" field ")"
op         = eq | ne | gt | lt | ge | le | contains | startswith | endswith
literal    = 'single quoted' | number | true | false
` + "```" + `

- ` + "`and`" + ` binds tighter than ` + "`or`" + `; use parentheses to group.
- Strings use single quotes; write ` + "`''`" + ` for a literal quote.
- ` + "`contains`" + `, ` + "`startswith`" + ` and ` + "`endswith`" + ` apply to string fields only.
- ` + "`tolower(field) eq 'value'`" + ` compares case-insensitively.
- Date fields compare chronologically: ` + "`publishDate ge '2024-01-01'`" + `.
- An array field without an index matches when any element matches;
  ` + "`tags ne 'x'`" + ` matches when no element equals ` + "`'x'`" + `.
- ` + "`tags[0] eq 'go'`" + ` compares a single element.
- A missing field satisfies only ` + "`ne`" + `.
- ` + "`id`" + ` refers to the item identifier.

## Examples

` + "```" + `
filter=tag eq 'tutorial' and draft eq false&orderby=publishDate desc&top=10
filter=tolower(title) contains 'go'&select=title,publishDate
filter=not (tags eq 'archived')&skip=20&top=20
` + "```" + `
`
