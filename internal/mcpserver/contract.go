package mcpserver

// NoteFormatContract describes the canonical Markdown note format that
// LLM consumers should follow when creating notes.
const NoteFormatContract = `# Note Format Contract

Every Markdown note stored in the vault MUST follow this structure.

## Structure

` + "```" + `markdown
---
title: Human-readable title        # REQUIRED – used in search and listings
tags:                               # OPTIONAL – YAML list; used for filtering
  - tag-one
  - tag-two
created: 2025-01-15                 # OPTIONAL – ISO-8601 date or datetime
---

Body text in standard Markdown.
` + "```" + `

## Rules

1. **YAML frontmatter is mandatory.** The ` + "`---`" + ` fences must be the first
   thing in the file (no leading blank lines).
2. **` + "`title`" + ` field is required.** It is the primary display name everywhere.
3. **Tags** are lowercase, kebab-case (e.g. ` + "`project-x`" + `, ` + "`meeting-notes`" + `).
4. **File paths** end with ` + "`.md`" + ` and use forward slashes.
5. **Encoding** is UTF-8 with a trailing newline.
6. **Language policy:** file names and frontmatter keys MUST be in English.
   Frontmatter values and body content may use any language.

## Protection

- A note whose frontmatter contains ` + "`protected: encrypted`" + ` is password-protected.
  Any other value, or no ` + "`protected`" + ` key, means the note is readable.
- Protected notes cannot be read through this server. Do **not** add the
  ` + "`protected`" + ` key yourself; protection is set by the owner with the password.

## Example

` + "```" + `markdown
---
title: Weekly standup 2025-01-20
tags:
  - meeting-notes
  - project-x
created: 2025-01-20
---

# Weekly standup 2025-01-20

Attendees: Alice, Bob.

## Action items

- Alice to review the design doc
- Bob to update the roadmap
` + "```" + `
`
