package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/devikshitij/classjournal-backend/internal/services"
)

// maxUploadBytes caps a file-bearing mutation at 10MB, one file.
const maxUploadBytes = 10 << 20

// multipartFormSlack is headroom on top of maxUploadBytes for the form
// envelope around the file part (boundaries, operations JSON).
const multipartFormSlack = 64 << 10

var errUploadTooLarge = errors.New("uploaded file exceeds the 10MB limit")

type graphqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type graphqlError struct {
	Message string `json:"message"`
}

// GraphQLHandler is the single-endpoint dispatcher: it pulls the operation
// name out of the request document, gates protected operations on the
// Authorization header, and hands the variables to the matching resolver.
type GraphQLHandler struct {
	journals *services.JournalService
	tokens   *services.TokenService
}

func NewGraphQLHandler(journals *services.JournalService, tokens *services.TokenService) *GraphQLHandler {
	return &GraphQLHandler{journals: journals, tokens: tokens}
}

func (h *GraphQLHandler) Serve(w http.ResponseWriter, r *http.Request) {
	req, file, err := parseRequest(w, r)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errUploadTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeErrors(w, status, err.Error())
		return
	}

	op := operationName(req.Query)
	if op == "" {
		writeErrors(w, http.StatusBadRequest, "No operation found in request document")
		return
	}

	if op == "login" {
		h.login(w, r, req.Variables)
		return
	}

	// Every other operation is protected: a missing header is rejected
	// before any resolver or database work happens.
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		writeErrors(w, http.StatusUnauthorized, "Token not provided!")
		return
	}
	verification := h.tokens.Verify(authHeader)

	switch op {
	case "journals":
		results, err := h.journals.ListJournals(r.Context(), verification)
		if err != nil {
			serverError(w, op, err)
			return
		}
		writeData(w, op, results)
	case "createJournal":
		h.createJournal(w, r, verification, req.Variables, file)
	case "deleteJournal":
		h.deleteJournal(w, r, verification, req.Variables)
	case "updateJournal":
		h.updateJournal(w, r, verification, req.Variables)
	default:
		writeErrors(w, http.StatusBadRequest, "Unknown operation: "+op)
	}
}

func (h *GraphQLHandler) login(w http.ResponseWriter, r *http.Request, vars map[string]interface{}) {
	username, _ := stringArg(vars, "username")
	password, _ := stringArg(vars, "password")

	payload, err := h.journals.Login(r.Context(), username, password)
	if errors.Is(err, services.ErrInvalidCredentials) {
		writeErrors(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		serverError(w, "login", err)
		return
	}
	writeData(w, "login", payload)
}

func (h *GraphQLHandler) createJournal(w http.ResponseWriter, r *http.Request, v services.Verification, vars map[string]interface{}, file *multipart.FileHeader) {
	description, ok := stringArg(vars, "description")
	if !ok || description == "" {
		writeErrors(w, http.StatusBadRequest, "description is required")
		return
	}
	publishedAt, err := timeArg(vars, "publishedAt")
	if err != nil {
		writeErrors(w, http.StatusBadRequest, err.Error())
		return
	}
	if publishedAt == nil {
		writeErrors(w, http.StatusBadRequest, "publishedAt is required")
		return
	}
	studentsTagged, err := intSliceArg(vars, "studentsTagged")
	if err != nil {
		writeErrors(w, http.StatusBadRequest, err.Error())
		return
	}

	input := services.CreateJournalInput{
		Description:    description,
		PublishedAt:    *publishedAt,
		AttachmentType: optionalStringArg(vars, "attachmentType"),
		AttachmentFile: file,
		StudentsTagged: studentsTagged,
	}
	result, err := h.journals.CreateJournal(r.Context(), v, input)
	if err != nil {
		serverError(w, "createJournal", err)
		return
	}
	writeData(w, "createJournal", result)
}

func (h *GraphQLHandler) deleteJournal(w http.ResponseWriter, r *http.Request, v services.Verification, vars map[string]interface{}) {
	journalID, err := intArg(vars, "journalId")
	if err != nil {
		writeErrors(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.journals.DeleteJournal(r.Context(), v, journalID)
	if err != nil {
		serverError(w, "deleteJournal", err)
		return
	}
	writeData(w, "deleteJournal", result)
}

func (h *GraphQLHandler) updateJournal(w http.ResponseWriter, r *http.Request, v services.Verification, vars map[string]interface{}) {
	journalID, err := intArg(vars, "journalId")
	if err != nil {
		writeErrors(w, http.StatusBadRequest, err.Error())
		return
	}

	input := services.UpdateJournalInput{
		JournalID:      journalID,
		Description:    optionalStringArg(vars, "description"),
		AttachmentType: optionalStringArg(vars, "attachmentType"),
		AttachmentURL:  optionalStringArg(vars, "attachmentUrl"),
	}
	input.PublishedAt, err = timeArg(vars, "publishedAt")
	if err != nil {
		writeErrors(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, present := vars["teacherId"]; present {
		teacherID, err := intArg(vars, "teacherId")
		if err != nil {
			writeErrors(w, http.StatusBadRequest, err.Error())
			return
		}
		input.TeacherID = &teacherID
	}
	if _, present := vars["studentsTagged"]; present {
		input.StudentsTagged, err = intSliceArg(vars, "studentsTagged")
		if err != nil {
			writeErrors(w, http.StatusBadRequest, err.Error())
			return
		}
		input.ReplaceTags = true
	}

	result, err := h.journals.UpdateJournal(r.Context(), v, input)
	if err != nil {
		serverError(w, "updateJournal", err)
		return
	}
	writeData(w, "updateJournal", result)
}

// parseRequest decodes the operation document and variables from either a
// JSON body or a multipart form carrying the document under "operations"
// plus at most one file part. File-bearing requests are hard-capped at
// maxUploadBytes: the body reader refuses anything past the cap (plus form
// envelope slack) rather than letting large files spill to temp files.
func parseRequest(w http.ResponseWriter, r *http.Request) (*graphqlRequest, *multipart.FileHeader, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+multipartFormSlack)
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				return nil, nil, errUploadTooLarge
			}
			return nil, nil, errors.New("failed to parse multipart form")
		}

		operations := r.FormValue("operations")
		if operations == "" {
			operations = r.FormValue("query")
		}
		var req graphqlRequest
		if err := json.Unmarshal([]byte(operations), &req); err != nil {
			// A bare document rather than an operations envelope.
			req = graphqlRequest{Query: operations}
		}
		if req.Variables == nil {
			req.Variables = map[string]interface{}{}
		}

		var file *multipart.FileHeader
		count := 0
		for _, headers := range r.MultipartForm.File {
			for _, header := range headers {
				count++
				file = header
			}
		}
		if count > 1 {
			return nil, nil, errors.New("at most one file may be uploaded")
		}
		if file != nil && file.Size > maxUploadBytes {
			return nil, nil, errUploadTooLarge
		}
		return &req, file, nil
	}

	var req graphqlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, nil, errors.New("invalid request body")
	}
	if req.Variables == nil {
		req.Variables = map[string]interface{}{}
	}
	return &req, nil, nil
}

// operationName extracts the first top-level field from a query or mutation
// document ("mutation { createJournal(...) }" -> "createJournal"). A bare
// identifier is accepted as shorthand.
func operationName(doc string) string {
	body := doc
	if i := strings.Index(doc, "{"); i != -1 {
		body = doc[i+1:]
	}
	body = strings.TrimLeft(body, " \t\r\n")

	end := 0
	for end < len(body) {
		c := body[end]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' {
			end++
			continue
		}
		break
	}
	return body[:end]
}

func writeData(w http.ResponseWriter, op string, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"data": map[string]interface{}{op: payload},
	})
}

func writeErrors(w http.ResponseWriter, status int, messages ...string) {
	errs := make([]graphqlError, 0, len(messages))
	for _, m := range messages {
		errs = append(errs, graphqlError{Message: m})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{"errors": errs})
}

func serverError(w http.ResponseWriter, op string, err error) {
	log.Printf("%s: %v", op, err)
	writeErrors(w, http.StatusInternalServerError, "Internal server error")
}

// Argument helpers: GraphQL variables arrive as generic JSON, and clients
// send numeric ids both as numbers and as strings.

func stringArg(vars map[string]interface{}, key string) (string, bool) {
	value, ok := vars[key].(string)
	return value, ok
}

func optionalStringArg(vars map[string]interface{}, key string) *string {
	if value, ok := vars[key].(string); ok {
		return &value
	}
	return nil
}

func intArg(vars map[string]interface{}, key string) (int, error) {
	switch value := vars[key].(type) {
	case float64:
		return int(value), nil
	case string:
		id, err := strconv.Atoi(value)
		if err != nil {
			return 0, errors.New(key + " must be an integer")
		}
		return id, nil
	case json.Number:
		id, err := value.Int64()
		if err != nil {
			return 0, errors.New(key + " must be an integer")
		}
		return int(id), nil
	default:
		return 0, errors.New(key + " is required")
	}
}

func intSliceArg(vars map[string]interface{}, key string) ([]int, error) {
	raw, ok := vars[key].([]interface{})
	if !ok {
		if _, present := vars[key]; present {
			return nil, errors.New(key + " must be a list of integers")
		}
		return nil, nil
	}
	out := make([]int, 0, len(raw))
	for _, item := range raw {
		switch value := item.(type) {
		case float64:
			out = append(out, int(value))
		case string:
			id, err := strconv.Atoi(value)
			if err != nil {
				return nil, errors.New(key + " must be a list of integers")
			}
			out = append(out, id)
		default:
			return nil, errors.New(key + " must be a list of integers")
		}
	}
	return out, nil
}

func timeArg(vars map[string]interface{}, key string) (*time.Time, error) {
	value, ok := vars[key].(string)
	if !ok {
		if _, present := vars[key]; present {
			return nil, errors.New(key + " must be a timestamp string")
		}
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t, nil
		}
	}
	return nil, errors.New(key + " must be an RFC3339 or YYYY-MM-DD timestamp")
}
