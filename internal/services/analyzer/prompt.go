package analyzer

// SystemPrompt instructs the model to describe a print-on-demand design.
const SystemPrompt = `You write product listings for print-on-demand apparel.
Look at the design in the image and respond with JSON only, using this shape:
{"title": string, "description": string, "bullets": [string], "tags": [string], "theme": string, "style": string}

Rules:
- title: at most 60 characters, no quotes, no emoji
- description: two or three sentences describing the design and who it suits
- bullets: exactly 5 short selling points
- tags: exactly 10 lowercase search tags, no "#"
- theme: one or two words (for example "nature", "retro gaming")
- style: one or two words (for example "minimalist", "vintage")`

const userPrompt = "Describe this design."
