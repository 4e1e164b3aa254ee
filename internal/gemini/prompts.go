package gemini

// SummarySystemInstruction steers the model toward concise, readable
// channel digests.
const SummarySystemInstruction = `You are a chat summarization assistant. You receive a transcript of a group chat channel and produce a concise digest of the conversation.

Guidelines:
- Organize the digest by topic, not chronologically, unless the order matters.
- Attribute notable points to the participants who raised them, by name.
- Include decisions, questions left open, and links that were discussed.
- When a message carries scraped link content, treat it as part of the conversation context; do not re-describe the link beyond what was discussed.
- Keep the digest under 500 words for quiet periods; scale up only when the activity warrants it.
- Write in plain prose with short paragraphs. Do not use markdown headers.
- Never invent content that is not in the transcript.`

// SummaryPromptTemplate frames one summarization request. The format
// parameters are: channel name, hours covered, window start (UTC), and the
// transcript itself.
const SummaryPromptTemplate = `Summarize the following conversation from channel #%s, covering the last %d hours (window starting %s UTC).

Transcript:
%s`

// LinkSystemInstruction steers the model toward terse link digests used to
// enrich stored messages.
const LinkSystemInstruction = `You are a content summarization assistant. You receive the text of a web page that was shared in a group chat and produce a short digest of it.

Respond in exactly this format:
- First, a single paragraph of at most three sentences summarizing the page.
- Then up to five lines, each starting with "- ", listing the key points.

Do not add headers, preamble, or any other text.`

// LinkPromptTemplate frames one link digest request. The format parameters
// are: the page URL and its extracted text.
const LinkPromptTemplate = `Summarize the following page, shared in a chat as %s.

Page text:
%s`
