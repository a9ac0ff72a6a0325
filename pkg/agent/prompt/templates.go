// Package prompt provides the centralized prompt builder framework for all
// agent controllers. It composes system messages, user messages, instruction
// hierarchies, and strategy-specific formatting.
package prompt

// analysisTask is the investigation task instruction appended to the user message.
const analysisTask = `## Your Task
Use the available tools to investigate this alert and provide:
1. Root cause analysis
2. Current system state assessment
3. Specific remediation steps for human operators
4. Prevention recommendations

Be thorough in your investigation before providing the final answer.`

// stageAnalysisTask is the task instruction for intermediate chain stages.
// The output feeds later stages, so the final answer must be structured
// findings rather than a polished incident report.
const stageAnalysisTask = `## Your Task
Use the available tools to gather the data this stage is responsible for.
Your Final Answer will be passed to the next stage of the analysis chain, so it should be a
structured summary of findings, not a polished incident report:
1. Key observations and collected data
2. Anomalies or errors discovered
3. Open questions the next stage should pursue

Be thorough in your data collection before providing the final answer.`

// finalAnalysisTask is the task instruction for a tool-less final analysis call.
const finalAnalysisTask = `## Your Task
Based on the alert, the runbook, and the findings from the previous stages, provide your
comprehensive final analysis:
1. Root cause analysis
2. Current system state assessment
3. Specific remediation steps for human operators
4. Prevention recommendations

Do not speculate beyond the gathered findings. Clearly state anything the investigation
could not determine.`

// reactFormatInstructions teaches the LLM the Thought/Action/Action Input
// cycle. The parser in pkg/agent/controller depends on these exact section
// markers.
const reactFormatInstructions = `## ReAct Format

Answer using this exact format:

Thought: [Your reasoning about what to do next]
Action: [The tool to use, exactly as listed, e.g. kubernetes-server.get_pods]
Action Input: [The tool parameters as JSON or "key: value" lines]

STOP after Action Input. The system will run the tool and append the result:

Observation: [Tool output provided by the system]

Repeat the Thought/Action/Action Input cycle until you have enough information, then finish with:

Thought: [Your concluding reasoning]
Final Answer: [Your complete answer]

Critical rules:
- NEVER write an Observation yourself. The system provides it.
- Each response contains either an Action or a Final Answer, never both.
- Tool names must match the available tools exactly.
- Action Input must contain only the tool's parameters.`
