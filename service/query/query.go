package query

import (
	"vision-assist/archive"
	"vision-assist/citation"
)

type RequestPayload struct {
	Query string `json:"query"`
}

type ResponseBody struct {
	Query     string              `json:"query"`
	Response  string              `json:"response"`
	Citations []citation.Citation `json:"citations"`
	Outcome   string              `json:"outcome"`
}

type ErrorBody struct {
	Error string `json:"error"`
}

type HistoryBody struct {
	Exchanges []archive.Exchange `json:"exchanges"`
}
