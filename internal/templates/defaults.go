package templates

// LorebookDefinition explains the lorebook format to the model. It is
// prepended to every lorebook-oriented prompt.
const LorebookDefinition = `### WORLDINFO (LOREBOOK) DEFINITION

A Lorebook is a collection of entries used to provide an AI with consistent, contextual information about a fictional world. Each entry represents a single concept (e.g., a character, location, or item).

**Purpose:** To ensure the AI consistently recalls key details about the world during role-playing or storytelling.

**Standard Entry Structure:**
- ` + "`title`" + `: A concise, descriptive title for the entry (e.g., "Aragorn", "The One Ring").
- ` + "`keywords`" + `: A list of keywords that cause this entry to be injected into the AI's context. Always includes the name and common aliases. 1-4 strong keywords.
- ` + "`content`" + `: A well-written, factual summary of the subject in an encyclopedic, in-universe tone. Be 100-400 words. Use markdown for formatting.`

// CharacterCardDefinition explains the character card format to the
// model. Prepended to character-oriented prompts.
const CharacterCardDefinition = `### CHARACTER CARD DEFINITION

A character card is a structured profile that guides an AI's behavior for consistent roleplay or storytelling. Its fields:

1. ` + "`name`" + `: The character's primary identifier. Memorable, reflects their role.
2. ` + "`description`" + `: A snapshot combining appearance, personality, and key traits. Vivid, concise language; prioritize traits critical to roleplay.
3. ` + "`persona`" + `: Explicitly defines how the character thinks and behaves. Core traits, motivations, flaws. Short phrases; avoid contradictions.
4. ` + "`scenario`" + `: Sets the stage: location, time, and the character's relationship to the user. Use the {{user}} placeholder to personalize.
5. ` + "`first_message`" + `: The opening line. Dialogue plus subtle actions, with a hook that invites engagement. Avoid passive openings.
6. ` + "`example_messages`" + `: 3-5 varied exchanges using {{char}} and {{user}} placeholders, mixing dialogue and actions, showing emotional range.

Write in third person, roleplaying style. Use line breaks for readability.`

// SelectorGeneration asks the model for crawl selectors.
const SelectorGeneration = `Your primary task is to analyze the provided HTML and identify CSS selectors for three distinct types of links: **Content Links**, **Category Links**, and a **Pagination Link**.

**Definitions:**
1. **Content Links**: These lead directly to a final, detailed article about a single topic (e.g., a character profile, an item description, a specific location's page).
2. **Category Links**: These lead to another page that is also a list, index, or sub-category of more links.
3. **Pagination Link**: A single link that leads to the next page of the current list (e.g., a "Next" button).

**Project Goal:**
- Purpose: {{.Purpose}}
- Extraction Notes: {{.ExtractionNotes}}
- Criteria for Content: {{.Criteria}}

**Rules for Selector Generation:**
1. **Prioritize Semantics**: Focus on selectors with meaningful class names or data attributes. Avoid generic selectors like ` + "`div > a`" + `.
2. **Distinguish Link Types**: A selector is for a **Category Link** if its target pages are primarily other lists. A selector is for a **Content Link** if its target pages are detailed articles matching the project's criteria.
3. **Content Precedence**: If a link could be considered both, it should be classified as a **Content Link**. A link should ONLY be a category if it is NOT a content link.
4. **Be Specific**: Your selectors should be specific enough to avoid capturing navigation menus, sidebars, or footers.
5. **Return Empty Lists**: If no selectors of a certain type are found, you MUST return an empty list for that key.
6. **Pagination**: The ` + "`pagination_selector`" + ` should be a single, specific selector for the "next page" element, or empty if none exists.`

// SearchParamsGeneration asks the model to turn a free-text project
// prompt into structured extraction parameters.
const SearchParamsGeneration = `Based on the user's request, generate search parameters for creating a lorebook. These parameters will guide the web scraping and content extraction process.

Example for "Characters from Lord of the Rings":
{
  "purpose": "To gather detailed information about characters, including their background, personality, key relationships, and significant actions.",
  "extraction_notes": "Extract the character's full name, aliases, species, physical description, personality traits, history, and notable relationships or affiliations.",
  "criteria": "The source page must be a dedicated character profile, biography, or wiki article. Reject list pages or articles that only mention the character in passing."
}

Example for "Locations in Skyrim":
{
  "purpose": "To gather detailed information about locations, including their description, history, and significance within the world.",
  "extraction_notes": "Extract the location's name, type (e.g., city, ruin, cave), geographical features, key inhabitants, history, and its role in any major events or quests.",
  "criteria": "The source page must be a dedicated article about the location. Reject pages that only reference the location as part of another topic."
}`

// EntryCreation asks the model to validate page content and, when
// valid, produce one lorebook entry.
const EntryCreation = `Analyze the following source content (extracted from {{.SourceURL}}) and create a single, detailed lorebook entry.

**CRITERIA FOR VALIDATION:**
*{{.Criteria}}*

**Step 1: Validate the Content**
- First, determine if the content provided meets the criteria above.
- If it **meets** the criteria, set ` + "`valid`" + ` to ` + "`true`" + ` and proceed to Step 2.
- If it **does not meet** the criteria, set ` + "`valid`" + ` to ` + "`false`" + `, provide a 1-2 sentence ` + "`reason`" + ` for why it was skipped (e.g., "Content is a list, not a detailed article."), and set ` + "`entry`" + ` to ` + "`null`" + `.

**Step 2: Create the Lorebook Entry (only if valid is true)**
- If the content is valid, create an ` + "`entry`" + ` object.

Purpose: {{.Purpose}}
Guidelines: {{.ExtractionNotes}}`

// CharacterGeneration asks the model for a full character card from
// combined source material.
const CharacterGeneration = `Your task is to create a complete Character Card based on the provided source material. Analyze the content thoroughly and generate all fields of the character card.

**Project Goal/Prompt:** {{.Prompt}}

**Rules:**
1. Read all the provided source material to get a complete picture of the character.
2. Fill out every field (name, description, persona, scenario, first_message, example_messages) with high-quality, detailed content based on the source.
3. The example_messages field must contain multiple dialogue examples.`

// CharacterFieldRegeneration asks the model to rewrite one card field.
const CharacterFieldRegeneration = `You are tasked with rewriting a single field of a character card based on the provided context and a specific user instruction.

**Field to Rewrite:** {{.Field}}

**User Instruction:** {{.CustomPrompt}}

--- CONTEXT ---
{{if .ExistingFields}}**EXISTING CHARACTER DATA:**
{{.ExistingFields}}
{{end}}{{if .SourceMaterial}}**RELEVANT SOURCE MATERIAL:**
{{.SourceMaterial}}
{{end}}--- END CONTEXT ---

Now, based on all the context above, provide the new rewritten content for the "{{.Field}}" field.`

// CharacterLorebookGeneration asks the model for supporting lorebook
// entries alongside a character card.
const CharacterLorebookGeneration = `You are creating lorebook entries to support roleplay with a character. Analyze the provided source material and generate entries covering the character's world: biography and background, personality and quirks, interests, relationships and connections, and notable events.

**Project Goal/Prompt:** {{.Prompt}}

For each entry:
- ` + "`title`" + `: Clear, specific title.
- ` + "`keywords`" + `: 3-5 words that would trigger this entry in conversation.
- ` + "`content`" + `: 100-300 words with specific details from the source material.

Generate 3-10 detailed entries that add unique information. Quality over quantity: avoid entries that overlap with each other.`

// JSONFormatter instructs a model without native structured output to
// emit schema-conforming JSON.
const JSONFormatter = `You are a highly specialized AI assistant. Your SOLE purpose is to generate a single, valid JSON object that strictly adheres to the provided JSON schema.

**CRITICAL INSTRUCTIONS:**
1. You MUST wrap the entire JSON object in a markdown code block.
2. Your response MUST NOT contain any explanatory text, comments, or any other content outside of this single code block.
3. The JSON object inside the code block MUST be valid and conform to the schema.

**JSON SCHEMA TO FOLLOW:**
{{.Schema}}{{if .Example}}

**EXAMPLE OF A PERFECT RESPONSE:**
{{.Example}}{{end}}`
