package web

import (
	"io"
	"mime/multipart"
	"net/http"

	"github.com/oneconcern/datapush/pkg/errors"
	"github.com/oneconcern/datapush/pkg/push/status"
)

type empty struct{}

// HandleHealth reports the liveness of the service
func (s *Server) HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// HandleInit opens a push session.
//
// Form values: stamp (JSON), checksum (optional for new datasets)
func (s *Server) HandleInit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.parseForm(w, r); err != nil {
			s.writeError(w, r, err)
			return
		}
		res, err := s.pusher.Init(r.Context(), datasetFromContext(r.Context()), []byte(r.PostFormValue("stamp")), r.PostFormValue("checksum"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, res)
	}
}

// HandleMeta uploads the metadata patch of a session.
//
// Form values: token, meta (JSON array of metadata entries)
func (s *Server) HandleMeta() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.parseForm(w, r); err != nil {
			s.writeError(w, r, err)
			return
		}
		token, err := s.sessionToken(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := s.pusher.StageMetadata(r.Context(), token, []byte(r.PostFormValue("meta"))); err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, empty{})
	}
}

// HandleUpload uploads a file to the staging area of a session.
//
// Multipart form values: token, path, file. The file is streamed to the staging area,
// so the token and path fields must come before it.
func (s *Server) HandleUpload() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
		mr, err := r.MultipartReader()
		if err != nil {
			s.writeError(w, r, badRequest(err))
			return
		}

		fields := make(map[string]string, 2)
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				s.writeError(w, r, status.ErrBadRequest.WrapMessage("missing file"))
				return
			}
			if err != nil {
				s.writeError(w, r, badRequest(err))
				return
			}

			if part.FormName() != "file" {
				value, err := readField(part)
				_ = part.Close()
				if err != nil {
					s.writeError(w, r, err)
					return
				}
				fields[part.FormName()] = value
				continue
			}

			err = s.stageUpload(r, fields, part)
			_ = part.Close()
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			s.writeJSON(w, http.StatusOK, empty{})
			return
		}
	}
}

func (s *Server) stageUpload(r *http.Request, fields map[string]string, file io.Reader) error {
	for _, name := range []string{"token", "path"} {
		if _, ok := fields[name]; !ok {
			return status.ErrBadRequest.WrapMessage("form field %q must come before the file", name)
		}
	}
	token, err := s.checkToken(r, fields["token"])
	if err != nil {
		return err
	}
	return s.pusher.StageFile(r.Context(), token, fields["path"], file)
}

func readField(part *multipart.Part) (string, error) {
	value, err := io.ReadAll(io.LimitReader(part, maxFieldSize+1))
	if err != nil {
		return "", badRequest(err)
	}
	if len(value) > maxFieldSize {
		return "", status.ErrBadRequest.WrapMessage("form field %q exceeds %d bytes", part.FormName(), maxFieldSize)
	}
	return string(value), nil
}

// HandleCommit commits a session.
//
// Form values: token
func (s *Server) HandleCommit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.parseForm(w, r); err != nil {
			s.writeError(w, r, err)
			return
		}
		token, err := s.sessionToken(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		res, err := s.pusher.Commit(r.Context(), token)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseForm(); err != nil {
		return badRequest(err)
	}
	return nil
}

// sessionToken yields the token of the request, which must refer to a session on the dataset of the route
func (s *Server) sessionToken(r *http.Request) (string, error) {
	return s.checkToken(r, r.FormValue("token"))
}

func (s *Server) checkToken(r *http.Request, token string) (string, error) {
	ref, err := s.pusher.DatasetOf(token)
	if err != nil {
		return "", err
	}
	if ref != datasetFromContext(r.Context()) {
		return "", status.ErrUnknownToken.WrapMessage("token %q does not push to %v", token, datasetFromContext(r.Context()))
	}
	return token, nil
}

func badRequest(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return err
	}
	return status.ErrBadRequest.Wrap(err)
}
