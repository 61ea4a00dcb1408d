package intent

// Type is the classified purpose of a user message.
type Type string

const (
	TypeBooking           Type = "BOOKING"
	TypePriceQuery        Type = "PRICE_QUERY"
	TypeInformation       Type = "INFORMATION"
	TypeFollowUp          Type = "FOLLOW_UP"
	TypeObjectionHandling Type = "OBJECTION_HANDLING"
	TypeUnknown           Type = "UNKNOWN"
)

// Taxonomy lists every intent type in priority order. The first entry is
// the fallback when the classifier's output cannot be parsed.
var Taxonomy = []Type{
	TypeBooking,
	TypePriceQuery,
	TypeInformation,
	TypeFollowUp,
	TypeObjectionHandling,
	TypeUnknown,
}

// Intent is the classification result for one inbound message. It lives for
// the duration of the request and is never persisted.
type Intent struct {
	Type       Type
	Confidence float64
	SourceText string
	// HintedEntities carries regex-extracted supplements keyed by kind
	// ("times", "dates", "prices").
	HintedEntities map[string][]string
}

// NeedsClarification reports whether the message should short-circuit to a
// clarifying question instead of entering the reasoning loop.
func (i Intent) NeedsClarification(threshold float64) bool {
	return i.Type != TypeBooking && i.Confidence < threshold
}

func validType(t Type) bool {
	for _, known := range Taxonomy {
		if known == t {
			return true
		}
	}
	return false
}
