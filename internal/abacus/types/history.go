package types

type HistoryRecord struct {
	ID         string `json:"id"`
	Expression string `json:"expression"`
	Result     string `json:"result"`
	CreatedAt  string `json:"created_at"` // RFC 3339, UTC
	Seq        int64  `json:"seq"`
}

type HistoryResponse struct {
	Records []HistoryRecord `json:"records"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
