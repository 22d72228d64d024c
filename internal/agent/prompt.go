package agent

import (
	"encoding/json"
	"strings"

	"github.com/nimbusai/nimbus/internal/session"
)

// systemPrompt fixes the action contract the model must follow. Tool
// descriptions are appended at loop construction.
const systemPrompt = `你是一个穿衣建议助手。根据用户的对话，判断下一步动作，并只输出一个 JSON 对象。

可选动作:
{"type":"tool","name":"<工具名>","input":{...}} 调用一个工具
{"type":"final","content":"<回复内容>"} 向用户给出最终回复

规则:
- 用户询问某城市的天气或穿衣时，先用 extract_city 找到城市，再把它返回的城市名传给 get_weather_today 查询天气，最后用 get_clothing_advice 生成建议。
- 对话中 [TOOL xxx] 开头的消息是工具结果，[TOOL_ERROR xxx] 开头的是工具错误。
- 信息足够时输出 final，用中文自然语言总结穿衣建议。
- 不要输出 JSON 以外的任何内容。

可用工具:
`

// buildSystemPrompt renders the fixed contract plus the tool list.
func buildSystemPrompt(toolList []map[string]any) string {
	var b strings.Builder
	b.WriteString(systemPrompt)
	for _, t := range toolList {
		line, err := json.Marshal(t)
		if err != nil {
			continue
		}
		b.Write(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// buildPrompt renders one completion request: the system contract, the
// session's rolling summary, the retained conversation, and the
// decision cue.
func buildPrompt(system string, snap session.Session) string {
	var b strings.Builder
	b.WriteString(system)
	b.WriteString("\n")
	b.WriteString("SessionId: ")
	b.WriteString(snap.ID)
	b.WriteString("\n")
	if snap.Summary != "" {
		b.WriteString("Summary: ")
		b.WriteString(snap.Summary)
		b.WriteString("\n")
	}
	b.WriteString("Conversation:\n")
	for _, m := range snap.Messages {
		b.WriteString("- ")
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	b.WriteString("Now decide the next action.\n")
	return b.String()
}
