package pipeline

// SortKey is the sortBy value of a listing request.
type SortKey string

const (
	SortPriceDesc SortKey = "high-to-low"
	SortPriceAsc  SortKey = "low-to-high"
	SortRatings   SortKey = "ratings"
	SortRelevance SortKey = "relevance"
	SortDefault   SortKey = ""
)

// ResolveSort maps a raw sortBy value to a SortKey. Matching is
// case-sensitive. "relevance" only applies when the request carried a search
// query; it and every unknown value fall back to SortDefault.
func ResolveSort(raw string, hasQuery bool) SortKey {
	switch k := SortKey(raw); k {
	case SortPriceDesc, SortPriceAsc, SortRatings:
		return k
	case SortRelevance:
		if hasQuery {
			return k
		}
	}
	return SortDefault
}

// Fields returns the sort specification for the key. Every ordering ends
// with ascending id so equal keys sort deterministically.
func (k SortKey) Fields() []SortField {
	tiebreak := SortField{Field: FieldID, Direction: Asc}
	switch k {
	case SortPriceDesc:
		return []SortField{{Field: FieldPrice, Direction: Desc}, tiebreak}
	case SortPriceAsc:
		return []SortField{{Field: FieldPrice, Direction: Asc}, tiebreak}
	case SortRatings:
		return []SortField{{Field: FieldAverageRating, Direction: Desc}, tiebreak}
	case SortRelevance:
		return []SortField{{Field: FieldRelevanceScore, Direction: Desc}, tiebreak}
	default:
		return []SortField{tiebreak}
	}
}
