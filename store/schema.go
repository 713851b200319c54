package store

// DynamoDB schema: one item per backend key
const (
	// Table attributes
	AttrPK    = "PK"
	AttrKind  = "kind"
	AttrValue = "value"
	AttrItems = "items"
	AttrTTL   = "ttl"

	// Item kinds
	KindValue = "value"
	KindList  = "list"
)

// dynamoItem is the stored shape of a backend key
type dynamoItem struct {
	PK    string   `dynamodbav:"PK"`
	Kind  string   `dynamodbav:"kind"`
	Value []byte   `dynamodbav:"value,omitempty"`
	Items []string `dynamodbav:"items,omitempty"`
	TTL   int64    `dynamodbav:"ttl,omitempty"`
}

// Expression placeholders. ttl and items are aliased because TTL is a
// DynamoDB reserved word.
const (
	namePK    = "#pk"
	nameKind  = "#kind"
	nameItems = "#items"
	nameTTL   = "#ttl"
)

var placeholderAttrs = map[string]string{
	namePK:    AttrPK,
	nameKind:  AttrKind,
	nameItems: AttrItems,
	nameTTL:   AttrTTL,
}

// expressionNames returns ExpressionAttributeNames for exactly the given
// placeholders; DynamoDB rejects unused names.
func expressionNames(placeholders ...string) map[string]string {
	names := make(map[string]string, len(placeholders))
	for _, p := range placeholders {
		names[p] = placeholderAttrs[p]
	}
	return names
}
