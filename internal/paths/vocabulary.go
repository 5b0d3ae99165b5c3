package paths

// template is one entry of the fixed path-type vocabulary. Generated paths
// must declare a path_type from this set; anything else is discarded.
type template struct {
	pathType       string
	description    string
	promptTemplate string
	confidence     float64
}

// vocabulary is the fixed set of strategy families, in default preference
// order. strategy_id values derive from the path types by normalization.
var vocabulary = []template{
	{
		pathType:       "Systematic Analytical",
		description:    "Decompose the problem into ordered sub-questions and resolve each with explicit reasoning before combining results.",
		promptTemplate: "Break down the following into its component questions and answer each in order: {query}",
		confidence:     0.75,
	},
	{
		pathType:       "Exploratory Search",
		description:    "Gather external information first; the answer depends on facts not present in the query.",
		promptTemplate: "Identify what information is missing to answer '{query}', retrieve it, then synthesize.",
		confidence:     0.7,
	},
	{
		pathType:       "Critical Verification",
		description:    "Treat the premise with suspicion: verify claims, hunt for counterexamples, state confidence explicitly.",
		promptTemplate: "Examine the claims in '{query}' critically, verify each, and report what survives scrutiny.",
		confidence:     0.65,
	},
	{
		pathType:       "Creative Synthesis",
		description:    "Combine ideas across domains to produce a novel framing or solution rather than a retrieved one.",
		promptTemplate: "Approach '{query}' by combining perspectives from unrelated fields into a novel answer.",
		confidence:     0.6,
	},
	{
		pathType:       "Practical Direct",
		description:    "The query has a short, concrete answer; respond directly without scaffolding.",
		promptTemplate: "Answer '{query}' directly and concisely.",
		confidence:     0.7,
	},
	{
		pathType:       "Analogical Reasoning",
		description:    "Map the problem onto a better-understood analog, solve there, and translate the solution back.",
		promptTemplate: "Find a well-understood analog for '{query}', reason about the analog, then map conclusions back.",
		confidence:     0.55,
	},
}

// vocabularyIndex maps normalized strategy_id to its template.
var vocabularyIndex = func() map[string]template {
	idx := make(map[string]template, len(vocabulary))
	for _, t := range vocabulary {
		idx[NormalizeStrategyID(t.pathType)] = t
	}
	return idx
}()

// Vocabulary lists the known strategy_id values in preference order.
func Vocabulary() []string {
	out := make([]string, len(vocabulary))
	for i, t := range vocabulary {
		out[i] = NormalizeStrategyID(t.pathType)
	}
	return out
}

// fromTemplate instantiates a vocabulary entry as a fresh path.
func fromTemplate(t template) ReasoningPath {
	sid := NormalizeStrategyID(t.pathType)
	return ReasoningPath{
		StrategyID:       sid,
		InstanceID:       NewInstanceID(sid),
		PathType:         t.pathType,
		Description:      t.description,
		PromptTemplate:   t.promptTemplate,
		LearningSource:   SourceStaticTemplate,
		ConfidenceScore:  t.confidence,
		ValidationStatus: StatusUnverified,
	}
}
