package vision

const detectPrompt = `Analyze this game screenshot and identify the dialogue/text box region.

The dialogue box is typically:
- At the bottom of the screen
- Contains game text/dialogue
- Has a visible border or background

Return ONLY a valid JSON object with this exact format:
{
    "x": <x coordinate of top-left corner>,
    "y": <y coordinate of top-left corner>,
    "width": <width of dialogue box>,
    "height": <height of dialogue box>
}

All coordinates must be integers. Be precise with the measurements.
Important: Return ONLY the JSON object, no additional text.`

const translateImagePrompt = `Analyze this game screenshot and OCR Japanese text from the DIALOGUE BOX only.

ONLY translate:
- Character names in dialogue
- Dialogue text spoken by characters
- Story/narrative text in dialogue boxes

IGNORE and do NOT translate:
- UI elements (menus, buttons, status text)
- Score displays, item names, or HUD text
- Small labels or single-word UI text
- Any text that appears to be part of menus or interfaces

If you see a dialogue box with character dialogue, translate ALL text in that box.
If there is NO dialogue box or active dialogue, return empty strings.

Return ONLY a valid JSON object with this exact format:
{
    "japanese_text": "<Original Japanese dialogue text with line breaks>",
    "english_text": "<English translation with line breaks>"
}

Preserve line breaks in both Japanese and English.
Return ONLY the JSON object, no additional text.`

const translateTextPrompt = `Translate the following Japanese video game dialogue into natural English.
Keep character names, preserve line breaks, and do not add commentary.
If the input is not dialogue (menu labels, stats, garbage characters), return empty strings.

Return ONLY a valid JSON object with this exact format:
{
    "japanese_text": "<the Japanese text as given>",
    "english_text": "<English translation>"
}

Japanese text:
`
