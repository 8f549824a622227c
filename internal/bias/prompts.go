package bias

import "fmt"

func detectPrompt(sentence string) string {
	return fmt.Sprintf(`You are a language analysis model trained to detect gender bias.

Task:
Review the entire sentence carefully and determine if it contains any form of gender bias, explicit or implicit.

Respond ONLY with:
- "Yes" if the sentence contains any clear or implied gender bias
- "No" if the sentence is entirely gender-neutral and free from bias

Do NOT provide any explanation. Do NOT add punctuation or additional words.

Sentence: "%s"

Response:`, sentence)
}

func correctPrompt(sentence string) string {
	return fmt.Sprintf(`You are an expert in inclusive and unbiased language.

Task:
Transform the following sentence into a gender-neutral version.

Rules:
- Do NOT simply replace gendered words
- Avoid ANY direct or implied comparison between genders
- Eliminate stereotypes or assumptions based on gender
- Preserve the original meaning and tone as much as possible
- Ensure natural, fluent, and inclusive grammar

Sentence: "%s"

Gender-Neutral Version:`, sentence)
}

func scorePrompt(sentence string) string {
	return fmt.Sprintf(`You are a bias evaluation expert.

Task:
Rate the gender bias in the following sentence on a scale from 50%% (mild bias) to 100%% (extreme bias).
Respond ONLY with the percentage number followed by a percent sign (e.g., "72%%").
Do NOT include any explanation or words.

Sentence: "%s"

Response:`, sentence)
}
