package domain

// NodeKind enumerates the closed set of node types the engine can dispatch on.
// Adding a node type means extending the const block, the queueByKind and
// consumedKeysByKind tables below, and the dispatcher table in
// internal/nodehandler; the compiler does not check that all are extended.
type NodeKind string

const (
	NodeIngestPDF     NodeKind = "ingest.pdf"
	NodeIngestURL     NodeKind = "ingest.url"
	NodeIngestWebhook NodeKind = "ingest.webhook"

	NodeAIRagQA     NodeKind = "ai.rag_qa"
	NodeAISummarize NodeKind = "ai.summarize"
	NodeAIClassify  NodeKind = "ai.classify"
	NodeTextTransform NodeKind = "text.transform"

	NodeActSlack  NodeKind = "act.slack"
	NodeActSheets NodeKind = "act.sheets"
	NodeActEmail  NodeKind = "act.email"
	NodeActNotion NodeKind = "act.notion"
	NodeActTwilio NodeKind = "act.twilio"
)

// Queue categories the broker exposes.
const (
	QueueDefault = "default"
	QueueIngest  = "ingest"
	QueueAI      = "ai"
	QueueActions = "actions"
)

// Valid reports whether k belongs to the closed set the engine understands.
func (k NodeKind) Valid() bool {
	_, ok := queueByKind[k]
	return ok
}

// Queue returns the broker category a node of this kind is dispatched on.
func (k NodeKind) Queue() string {
	return queueByKind[k]
}

var queueByKind = map[NodeKind]string{
	NodeIngestPDF:     QueueIngest,
	NodeIngestURL:     QueueIngest,
	NodeIngestWebhook: QueueIngest,

	NodeAIRagQA:       QueueAI,
	NodeAISummarize:   QueueAI,
	NodeAIClassify:    QueueAI,
	NodeTextTransform: QueueAI,

	NodeActSlack:  QueueActions,
	NodeActSheets: QueueActions,
	NodeActEmail:  QueueActions,
	NodeActNotion: QueueActions,
	NodeActTwilio: QueueActions,
}

// ConsumedKeys lists the Run.Inputs keys a node of this kind reads when it
// has no predecessors (a frontier node). Non-frontier nodes instead consume
// their predecessors' outputs, merged by the Coordinator (see internal/coordinator).
func (k NodeKind) ConsumedKeys() []string {
	return consumedKeysByKind[k]
}

var consumedKeysByKind = map[NodeKind][]string{
	NodeIngestWebhook: {"data"},
	NodeAIRagQA:       {"content", "document_id", "query"},
	NodeAISummarize:   {"content"},
	NodeAIClassify:    {"content"},
	NodeTextTransform: {"content"},
	NodeActSlack:      {"content", "text", "summary"},
	NodeActSheets:     {"data", "content"},
	NodeActEmail:      {"content", "text"},
	NodeActNotion:     {"content", "text"},
	NodeActTwilio:     {"content", "text"},
}
