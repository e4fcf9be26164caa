package models

// Shape identifies which URL layout an ASIN was extracted from.
type Shape int

const (
	None Shape = iota
	Canonical
	ExecObidosASIN
	OASIN
	ExecObidosISBN
	OISBN
	ExecObidosDetail
	ODetail
	GPProduct
	GPProductDescription
	SegmentDP
	TitleDP
	QueryDP
)

func (s Shape) String() string {
	switch s {
	case Canonical:
		return "canonical"
	case ExecObidosASIN:
		return "exec-obidos-asin"
	case OASIN:
		return "o-asin"
	case ExecObidosISBN:
		return "exec-obidos-isbn"
	case OISBN:
		return "o-isbn"
	case ExecObidosDetail:
		return "exec-obidos-detail"
	case ODetail:
		return "o-detail"
	case GPProduct:
		return "gp-product"
	case GPProductDescription:
		return "gp-product-description"
	case SegmentDP:
		return "segment-dp"
	case TitleDP:
		return "title-dp"
	case QueryDP:
		return "query-dp"
	default:
		return "none"
	}
}
