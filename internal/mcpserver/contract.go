package mcpserver

// NoteFormatContract describes the canonical Markdown note format that
// LLM consumers should follow when creating or updating notes.
const NoteFormatContract = `# Ansuz Note Format Contract

Every Markdown note stored in Ansuz MUST follow this structure.

## Structure

` + "```" + `markdown
---
title: Human-readable title        # REQUIRED – used in search and listings
url: https://example.com/article    # OPTIONAL – source page for captures
domain: example.com                 # OPTIONAL – source domain for captures
hero_image: /attachments/hero.png   # OPTIONAL – lead image path
tags:                               # OPTIONAL – YAML list; used for filtering
  - tag-one
  - tag-two
captured: 2026-08-28T10:00:00Z      # OPTIONAL – capture timestamp
---

Body text in standard Markdown. For captured pages this is the readable
article content with navigation and boilerplate stripped.
` + "```" + `

## Rules

1. **YAML frontmatter is mandatory.** The ` + "```" + `---` + "```" + ` fences must be the first
   thing in the file (no leading blank lines).
2. **` + "`" + `title` + "`" + ` field is required.** It is the primary display name everywhere.
3. **Tags** are lowercase, kebab-case, 2 to 30 characters (e.g. ` + "`" + `machine-learning` + "`" + `,
   ` + "`" + `reading-list` + "`" + `). Plugins that suggest tags follow the same rules.
4. **File paths** end with ` + "`" + `.md` + "`" + ` and use forward slashes. Captures live under
   ` + "`" + `captures/<year>/<month>/` + "`" + `.
5. **Encoding** is UTF-8 with a trailing newline.
6. **No HTML** in the body; HTML from captured pages is stripped before
   plugins see the content.
7. **Language policy:** file names and directory names MUST be in English (Latin characters).
   Frontmatter keys MUST be in English (they are schema fields). Frontmatter values
   (title, tags, etc.) and body content may use any language.

## Assets & Images

- Upload assets via the ` + "`" + `upload_asset` + "`" + ` tool. It returns a ` + "`" + `markdownImage` + "`" + ` field ready to paste into the note body.
- Assets are stored in the shared ` + "`" + `attachments/` + "`" + ` directory (flat, no sub-folders).
- Reference in notes using the absolute path: ` + "`" + `![description](/attachments/filename.png)` + "`" + `
- Supported formats: png, jpg, jpeg, gif, webp, svg, pdf.
- Do **not** use relative paths like ` + "`" + `./attachments/...` + "`" + ` — always use ` + "`" + `/attachments/filename` + "`" + `.

## Example

` + "```" + `markdown
---
title: How SQLite Works
url: https://example.com/sqlite-internals
domain: example.com
tags:
  - databases
  - reading-list
captured: 2026-08-28T10:00:00Z
---

# How SQLite Works

SQLite stores the entire database in a single file...

![Architecture diagram](/attachments/sqlite-arch.png)
` + "```" + `
`
