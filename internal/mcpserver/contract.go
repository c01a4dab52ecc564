package mcpserver

// TargetSyntax describes how converted markdown maps onto Zim wiki markup.
// It is served as a resource so clients know what rewrite_markup and
// convert_note produce.
const TargetSyntax = `# Zim Target Syntax

Notes are converted from HTML to markdown first and then rewritten into Zim
wiki markup. Every rule is a plain text replacement; anything a rule does not
recognise is left untouched.

## Headings

| Markdown    | Zim            |
|-------------|----------------|
| ` + "`# `" + `       | ` + "`====== `" + `    |
| ` + "`## `" + `      | ` + "`==== `" + `      |
| ` + "`### `" + `     | ` + "`== `" + `        |

Deeper headings are not rewritten.

## Horizontal rules

A line holding three asterisks separated by optional blanks (` + "`* * *`" + `)
becomes a line of 80 dashes.

## Bullets

- ` + "`*   *   text`" + ` collapses to ` + "`*   text`" + `.
- Bullet indentation is normalised: top level ` + "`*`" + `, second level four
  spaces, third level eight spaces.

## Links and images

| Markdown                          | Zim                                          |
|-----------------------------------|----------------------------------------------|
| ` + "`[title](dest)`" + `                   | ` + "`[[dest]]`" + `                                   |
| ` + "`![title](path)`" + `                  | ` + "`{{<output>/<assets>/<path>?800|title}}`" + `     |
| ` + "`[![title](path)](url)`" + `           | ` + "`[[url|{{<output>/<assets>/<path>?800|title}}]]`" + ` |

Bold around a link (` + "`**[a](b)**`" + `) is dropped before links are rewritten.

Image paths are percent-decoded, anchored under the asset directory
(default ` + "`uncategorized`" + `) of the output root, and characters that are
unsafe in file names are replaced with ` + "`_`" + `. Remote images (` + "`http://`" + `,
` + "`https://`" + `, ` + "`data:`" + `) keep their address. Use the fetch_image tool to store a
remote image locally and get an embed for it; it lands in ` + "`<asset dir>/fetched/`" + `.
Backups run with ` + "`rewrite.fetch_remote`" + ` do the same for every remote embed.

## File names

Notes are saved as ` + "`.txt`" + ` files. In note and notebook names the characters
` + "`? # / \\ * \" < > | %`" + ` and space become ` + "`_`" + `; a slash becomes ` + "`&`" + ` first.
`
