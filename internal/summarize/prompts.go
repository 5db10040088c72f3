package summarize

import "fmt"

// Fixed prompt texts. Their exact wording is part of the report contract and
// must not be reworded: downstream consumers rely on the scrub-free output
// rules and the cross-group section layout.

const defaultSystemPrompt = "你是一个 Telegram 群聊分析助手，请用中文输出结构化摘要。" +
	"请使用纯文本格式，不要使用 Markdown 语法（不要用 # * ** __ 等符号），改用数字编号和物理换行来排版。"

const mergeSystemPrompt = "你是一个信息合并助手。请将多个分析结果合并为一份结构化摘要。" +
	"请使用纯文本格式，不要使用 Markdown 语法（不要用 # * ** __ 等符号）。"

const noRecordsSentinel = "📭 该时间段内没有消息记录。"

// failure marker prefix: callers treat any result starting with this rune
// sequence as a failed summary.
const failPrefix = "❌"

// mergeUserPreamble heads the merge request, followed by the chunk partials
// joined with chunkJoin.
const mergeUserPreamble = "请将以下多个批次的群聊分析结果合并为一份完整的摘要，去除重复内容，保留所有重要信息：\n\n"

// chunkJoin separates chunk partials in the merge request and in the
// degraded fallback output.
const chunkJoin = "\n\n---\n\n"

// crossGroupJoin separates per-group reports in the overview request and in
// the degraded fallback output.
const crossGroupJoin = "\n\n────────\n\n"

func chunkInstruction(i, total int) string {
	return fmt.Sprintf("(这是第 %d 批消息，共 %d 批，请先提取这一批的要点)", i, total)
}

// crossGroupPrompt wraps the joined per-group reports in the overview
// template. Sent with the merge system prompt.
func crossGroupPrompt(perGroup string) string {
	return "以下是各个 Telegram 群组的独立分析结果。\n" +
		"请将它们整合为一份完整的跨群总览报告，格式如下：\n\n" +
		"【今日速览】\n" +
		"2-3 句话概括所有群聊的整体动态和氛围。\n\n" +
		"────────\n" +
		"【各群动态】\n" +
		"• 群名称：核心发生了什么（一句话），活跃程度\n\n" +
		"────────\n" +
		"【需要关注的信息】\n" +
		"• 具体说明哪个群、什么时间段、哪类内容值得去翻看\n\n" +
		"────────\n" +
		"【风险与注意事项】\n" +
		"• 警告/投诉/异常信息（如无则省略此节）\n\n" +
		"────────\n" +
		"【行动建议】\n" +
		"• 2-4 条今天需要采取的具体行动\n\n" +
		"严禁使用 # * ** __ 等 Markdown 符号，列表项用「•」。\n\n" +
		"各群分析数据如下：\n\n" +
		perGroup
}
