package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/local/flipbook/internal/access"
	"github.com/local/flipbook/internal/flipbook"
	"github.com/local/flipbook/internal/intake"
	"github.com/local/flipbook/internal/pagination"
	"github.com/local/flipbook/internal/rasterizer"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sum := s.checker.Summary(r.Context())
	code := http.StatusOK
	if !sum.Healthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, sum)
}

// createReq overrides the registry defaults. Absent fields keep them.
type createReq struct {
	Step      *int     `json:"step"`
	Cover     *bool    `json:"cover"`
	PadOdd    *bool    `json:"pad_odd"`
	Scale     *float64 `json:"scale"`
	Format    *string  `json:"format"`
	Quality   *int     `json:"quality"`
	ColorMode *string  `json:"color_mode"`
	Policy    *string  `json:"policy"`
}

func (req createReq) apply(st flipbook.Settings) flipbook.Settings {
	if req.Step != nil {
		st.Step = *req.Step
	}
	if req.Cover != nil {
		st.Cover = *req.Cover
	}
	if req.PadOdd != nil {
		st.Render.PadOdd = *req.PadOdd
	}
	if req.Scale != nil {
		st.Render.Scale = *req.Scale
	}
	if req.Format != nil {
		st.Render.Format = rasterizer.Format(*req.Format)
	}
	if req.Quality != nil {
		st.Render.Quality = *req.Quality
	}
	if req.ColorMode != nil {
		st.Render.ColorMode = rasterizer.ColorMode(*req.ColorMode)
	}
	if req.Policy != nil {
		st.Render.Policy = rasterizer.Policy(*req.Policy)
	}
	return st
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	b, err := s.books.Create(req.apply(s.books.Defaults()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/flipbooks/"+b.ID())
	writeJSON(w, http.StatusCreated, b.View(r.Context()))
}

// book resolves the {id} URL parameter, writing a 404 when it is unknown.
func (s *Server) book(w http.ResponseWriter, r *http.Request) (*flipbook.Book, bool) {
	b, err := s.books.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return b, true
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	b, ok := s.book(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, b.View(r.Context()))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.books.Delete(chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type documentReq struct {
	Source string `json:"source"`
}

type documentResp struct {
	ID         string `json:"id"`
	Generation uint64 `json:"generation"`
	Name       string `json:"name"`
	Bytes      int    `json:"bytes"`
	Pages      int    `json:"pages,omitempty"`
	Status     string `json:"status_url"`
}

// handleDocument accepts a multipart "file" upload or a JSON source
// reference and starts loading it in the background.
func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	b, ok := s.book(w, r)
	if !ok {
		return
	}
	grant := access.FromContext(r.Context())

	src, err := s.readDocument(r, grant)
	if err != nil {
		writeError(w, r, err)
		return
	}
	gen, err := b.Start(grant, src.Data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, documentResp{
		ID:         b.ID(),
		Generation: gen,
		Name:       src.Name,
		Bytes:      len(src.Data),
		Pages:      src.Pages,
		Status:     "/flipbooks/" + b.ID(),
	})
}

func (s *Server) readDocument(r *http.Request, grant access.Grant) (*intake.Source, error) {
	if isMultipart(r) {
		part, err := formPart(r, "file")
		if err != nil {
			return nil, err
		}
		defer part.Close()
		return s.intake.Read(r.Context(), grant, part.FileName(), part)
	}

	var req documentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if strings.TrimSpace(req.Source) == "" {
		return nil, fmt.Errorf("%w: source is required", errBadRequest)
	}
	return s.intake.Fetch(r.Context(), grant, req.Source)
}

type pagesResp struct {
	Status      flipbook.Status        `json:"status"`
	Total       int                    `json:"total"`
	SourcePages int                    `json:"source_pages"`
	Padded      bool                   `json:"padded"`
	Failed      []int                  `json:"failed,omitempty"`
	Pages       []rasterizer.PageImage `json:"pages"`
}

func (s *Server) handlePages(w http.ResponseWriter, r *http.Request) {
	b, ok := s.book(w, r)
	if !ok {
		return
	}
	resp := pagesResp{
		Status: b.Status(r.Context()).Status,
		Pages:  []rasterizer.PageImage{},
	}
	if set := b.Pages(); set != nil {
		resp.Total = set.TotalCount()
		resp.SourcePages = set.SourcePages
		resp.Padded = set.Padded
		resp.Failed = set.Failed
		resp.Pages = set.Pages
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePage writes one page image, or its data URI as text with
// ?format=datauri.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	b, ok := s.book(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: page index must be an integer", errBadRequest))
		return
	}
	page, ok := b.Page(index)
	if !ok {
		writeError(w, r, fmt.Errorf("%w: %d", errPageNotFound, index))
		return
	}

	if r.URL.Query().Get("format") == "datauri" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, page.DataURI())
		return
	}
	w.Header().Set("Content-Type", page.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(page.Data)))
	_, _ = w.Write(page.Data)
}

type navResp struct {
	State pagination.State `json:"state"`
	Label string           `json:"label"`
	Moved bool             `json:"moved"`
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	b, ok := s.book(w, r)
	if !ok {
		return
	}
	st, moved := b.Next()
	writeJSON(w, http.StatusOK, navResp{State: st, Label: b.Label(st), Moved: moved})
}

func (s *Server) handlePrev(w http.ResponseWriter, r *http.Request) {
	b, ok := s.book(w, r)
	if !ok {
		return
	}
	st, moved := b.Prev()
	writeJSON(w, http.StatusOK, navResp{State: st, Label: b.Label(st), Moved: moved})
}

type syncReq struct {
	Index *int `json:"index"`
}

// handleSync adopts the index the flip widget settled on.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	b, ok := s.book(w, r)
	if !ok {
		return
	}
	var req syncReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	if req.Index == nil {
		writeError(w, r, fmt.Errorf("%w: index is required", errBadRequest))
		return
	}
	st, moved := b.Sync(*req.Index)
	writeJSON(w, http.StatusOK, navResp{State: st, Label: b.Label(st), Moved: moved})
}

type appearanceReq struct {
	Background string `json:"background"`
	Effect     string `json:"effect"`
}

func (s *Server) handleAppearance(w http.ResponseWriter, r *http.Request) {
	b, ok := s.book(w, r)
	if !ok {
		return
	}
	var req appearanceReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	a, err := b.SetAppearance(req.Background, req.Effect)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type logoResp struct {
	MimeType string `json:"mime_type"`
	Bytes    int    `json:"bytes"`
}

// handleSetLogo takes a multipart "logo" part or the raw image as the body.
func (s *Server) handleSetLogo(w http.ResponseWriter, r *http.Request) {
	b, ok := s.book(w, r)
	if !ok {
		return
	}
	grant := access.FromContext(r.Context())

	var body io.Reader = r.Body
	if isMultipart(r) {
		part, err := formPart(r, "logo")
		if err != nil {
			writeError(w, r, err)
			return
		}
		defer part.Close()
		body = part
	}
	logo, err := s.intake.ReadLogo(r.Context(), grant, body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := b.SetLogo(flipbook.Logo{Data: logo.Data, MimeType: logo.MimeType}); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, logoResp{MimeType: logo.MimeType, Bytes: len(logo.Data)})
}

func (s *Server) handleGetLogo(w http.ResponseWriter, r *http.Request) {
	b, ok := s.book(w, r)
	if !ok {
		return
	}
	logo, ok := b.Logo()
	if !ok {
		writeError(w, r, errNoLogo)
		return
	}
	w.Header().Set("Content-Type", logo.MimeType)
	_, _ = w.Write(logo.Data)
}

func (s *Server) handleClearLogo(w http.ResponseWriter, r *http.Request) {
	b, ok := s.book(w, r)
	if !ok {
		return
	}
	b.ClearLogo()
	w.WriteHeader(http.StatusNoContent)
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// formPart streams the multipart body up to the part named name, so
// intake limits apply without buffering the whole upload.
func formPart(r *http.Request, name string) (*multipart.Part, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: missing %q part", errBadRequest, name)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errBadRequest, err)
		}
		if part.FormName() == name {
			return part, nil
		}
		_ = part.Close()
	}
}
