package run

import (
	"strings"

	"cmdfix/internal/diag"
	"cmdfix/internal/util"

	"github.com/openai/openai-go/v3"
)

func systemPrompt() string {
	return strings.TrimSpace(`You are a shell debugger. Analyze shell command errors and suggest a working command.
You are to only provide a suggested shell command-line, no other text, and no code blocks.
Use the provided functions to gather additional information when necessary.`)
}

// fewShotMessages primes the request-response variant, which gets no
// second chance to clarify.
func fewShotMessages() []openai.ChatCompletionMessageParamUnion {
	return []openai.ChatCompletionMessageParamUnion{
		openai.UserMessage("```sh\ncd /nonexistent_dir\n```\nError Output:\n```\nbash: cd: /nonexistent_dir: No such file or directory\n```"),
		openai.AssistantMessage("cd /existing_dir"),
		openai.UserMessage("```sh\ngrep 'pattern'\n```\nError Output:\n```\ngrep: missing file operand\n```"),
		openai.AssistantMessage("grep 'pattern' file1.txt"),
		openai.UserMessage("```sh\npython script.py\n```\nError Output:\n```\npython: command not found\n```"),
		openai.AssistantMessage("python3 script.py"),
	}
}

// InitialMessages builds the first conversation turn from the
// diagnostic record, optionally primed with few-shot examples and
// recent shell history.
func InitialMessages(details diag.CommandError, historyLines int, fewShot bool) []openai.ChatCompletionMessageParamUnion {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt()),
	}
	if fewShot {
		messages = append(messages, fewShotMessages()...)
	}
	if historyLines > 0 {
		if history := util.LoadShellHistory(historyLines); len(history) > 0 {
			messages = append(messages, openai.DeveloperMessage("Recent shell history (most recent last):\n- "+strings.Join(history, "\n- ")))
		}
	}
	messages = append(messages, openai.UserMessage(details.JSON()))
	return messages
}
