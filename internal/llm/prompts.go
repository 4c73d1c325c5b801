package llm

import "fmt"

// AnalystSystemPrompt frames the model as a graph analyst
const AnalystSystemPrompt = `You are a Graph Analyst, a data analyst who works with knowledge graphs of news articles and the people, organisations, locations, events and knowledge they mention.
Your goal: analyze graph data and provide insights.
Communication style: professional and clear. Base every statement on the data provided; if the data does not answer the question, say so.`

// AnalysisPrompt builds the user turn for one question and its serialized rows
func AnalysisPrompt(question, data string) string {
	return fmt.Sprintf("Analyze this data to answer: %s\n\nData: %s\n\nProvide a summary and key findings.", question, data)
}
