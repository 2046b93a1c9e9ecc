package handlers

import "net/http"

type pdfRequest struct {
	PDFBase64 string `json:"pdfBase64"`
	FileID    string `json:"fileId,omitempty"`
}

func (api *API) ExtractPDF(w http.ResponseWriter, r *http.Request) {
	var request pdfRequest
	if err := decodeJSON(w, r, &request); err != nil {
		api.writeError(w, r, err)
		return
	}

	text, err := api.processing.ExtractPDF(r.Context(), userID(r), request.PDFBase64, request.FileID)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}
