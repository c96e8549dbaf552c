package generated

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// ServerInterface — обработчики всех маршрутов API.
type ServerInterface interface {
	// (GET /health/live)
	HealthLive(w http.ResponseWriter, r *http.Request)
	// (GET /health/ready)
	HealthReady(w http.ResponseWriter, r *http.Request)
	// (GET /metrics)
	GetMetrics(w http.ResponseWriter, r *http.Request)

	// (POST /api/v1/submissions)
	CreateSubmission(w http.ResponseWriter, r *http.Request)
	// (GET /api/v1/submissions/my)
	ListMySubmissions(w http.ResponseWriter, r *http.Request, params ListMySubmissionsParams)
	// (GET /api/v1/submissions/{submissionId})
	GetSubmission(w http.ResponseWriter, r *http.Request, submissionId SubmissionId)
	// (PUT /api/v1/submissions/{submissionId})
	UpdateSubmission(w http.ResponseWriter, r *http.Request, submissionId SubmissionId)
	// (POST /api/v1/submissions/{submissionId}/submit)
	SubmitSubmission(w http.ResponseWriter, r *http.Request, submissionId SubmissionId)
	// (GET /api/v1/submissions/{submissionId}/review-result)
	GetReviewResult(w http.ResponseWriter, r *http.Request, submissionId SubmissionId)

	// (GET /api/v1/doc-types/{docTypeId})
	GetDocType(w http.ResponseWriter, r *http.Request, docTypeId DocTypeId)
	// (GET /api/v1/doc-types/{docTypeId}/deadline)
	GetDeadline(w http.ResponseWriter, r *http.Request, docTypeId DocTypeId)
	// (PUT /api/v1/doc-types/{docTypeId}/deadline)
	SetDeadline(w http.ResponseWriter, r *http.Request, docTypeId DocTypeId)
	// (DELETE /api/v1/doc-types/{docTypeId}/deadline)
	ClearDeadline(w http.ResponseWriter, r *http.Request, docTypeId DocTypeId)
	// (GET /api/v1/doc-types/{docTypeId}/template)
	DownloadTemplate(w http.ResponseWriter, r *http.Request, docTypeId DocTypeId)
	// (PUT /api/v1/doc-types/{docTypeId}/template)
	UploadTemplate(w http.ResponseWriter, r *http.Request, docTypeId DocTypeId)

	// (GET /api/v1/admin/submissions)
	AdminListSubmissions(w http.ResponseWriter, r *http.Request, params AdminListSubmissionsParams)
	// (GET /api/v1/admin/submissions/{submissionId})
	AdminGetSubmission(w http.ResponseWriter, r *http.Request, submissionId SubmissionId)
	// (POST /api/v1/admin/submissions/{submissionId}/start-review)
	AdminStartReview(w http.ResponseWriter, r *http.Request, submissionId SubmissionId)
	// (POST /api/v1/admin/submissions/{submissionId}/approve)
	AdminApproveSubmission(w http.ResponseWriter, r *http.Request, submissionId SubmissionId)
	// (POST /api/v1/admin/submissions/{submissionId}/reject)
	AdminRejectSubmission(w http.ResponseWriter, r *http.Request, submissionId SubmissionId)
	// (GET /api/v1/admin/submissions/{submissionId}/file)
	AdminDownloadFile(w http.ResponseWriter, r *http.Request, submissionId SubmissionId)
}

// Unimplemented — ServerInterface, отвечающий 501 на все запросы.
// Встраивается в реализацию, чтобы переопределять только нужные методы.
type Unimplemented struct{}

func (_ Unimplemented) HealthLive(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNotImplemented)
}

func (_ Unimplemented) HealthReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNotImplemented)
}

func (_ Unimplemented) GetMetrics(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNotImplemented)
}

func (_ Unimplemented) CreateSubmission(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNotImplemented)
}

func (_ Unimplemented) ListMySubmissions(w http.ResponseWriter, r *http.Request, params ListMySubmissionsParams) {
	w.WriteHeader(http.StatusNotImplemented)
}

func (_ Unimplemented) GetSubmission(w http.ResponseWriter, r *http.Request, submissionId SubmissionId) {
	w.WriteHeader(http.StatusNotImplemented)
}

func (_ Unimplemented) UpdateSubmission(w http.ResponseWriter, r *http.Request, submissionId SubmissionId) {
	w.WriteHeader(http.StatusNotImplemented)
}

func (_ Unimplemented) SubmitSubmission(w http.ResponseWriter, r *http.Request, submissionId SubmissionId) {
	w.WriteHeader(http.StatusNotImplemented)
}

func (_ Unimplemented) GetReviewResult(w http.ResponseWriter, r *http.Request, submissionId SubmissionId) {
	w.WriteHeader(http.StatusNotImplemented)
}

func (_ Unimplemented) GetDocType(w http.ResponseWriter, r *http.Request, docTypeId DocTypeId) {
	w.WriteHeader(http.StatusNotImplemented)
}

func (_ Unimplemented) GetDeadline(w http.ResponseWriter, r *http.Request, docTypeId DocTypeId) {
	w.WriteHeader(http.StatusNotImplemented)
}

func (_ Unimplemented) SetDeadline(w http.ResponseWriter, r *http.Request, docTypeId DocTypeId) {
	w.WriteHeader(http.StatusNotImplemented)
}

func (_ Unimplemented) ClearDeadline(w http.ResponseWriter, r *http.Request, docTypeId DocTypeId) {
	w.WriteHeader(http.StatusNotImplemented)
}

func (_ Unimplemented) DownloadTemplate(w http.ResponseWriter, r *http.Request, docTypeId DocTypeId) {
	w.WriteHeader(http.StatusNotImplemented)
}

func (_ Unimplemented) UploadTemplate(w http.ResponseWriter, r *http.Request, docTypeId DocTypeId) {
	w.WriteHeader(http.StatusNotImplemented)
}

func (_ Unimplemented) AdminListSubmissions(w http.ResponseWriter, r *http.Request, params AdminListSubmissionsParams) {
	w.WriteHeader(http.StatusNotImplemented)
}

func (_ Unimplemented) AdminGetSubmission(w http.ResponseWriter, r *http.Request, submissionId SubmissionId) {
	w.WriteHeader(http.StatusNotImplemented)
}

func (_ Unimplemented) AdminStartReview(w http.ResponseWriter, r *http.Request, submissionId SubmissionId) {
	w.WriteHeader(http.StatusNotImplemented)
}

func (_ Unimplemented) AdminApproveSubmission(w http.ResponseWriter, r *http.Request, submissionId SubmissionId) {
	w.WriteHeader(http.StatusNotImplemented)
}

func (_ Unimplemented) AdminRejectSubmission(w http.ResponseWriter, r *http.Request, submissionId SubmissionId) {
	w.WriteHeader(http.StatusNotImplemented)
}

func (_ Unimplemented) AdminDownloadFile(w http.ResponseWriter, r *http.Request, submissionId SubmissionId) {
	w.WriteHeader(http.StatusNotImplemented)
}

// InvalidParamFormatError — параметр запроса не разобран.
type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("Invalid format for parameter %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error {
	return e.Err
}

// RequiredParamError — обязательный параметр отсутствует.
type RequiredParamError struct {
	ParamName string
}

func (e *RequiredParamError) Error() string {
	return fmt.Sprintf("Query argument %s is required, but not found", e.ParamName)
}

// MiddlewareFunc — middleware отдельного обработчика.
type MiddlewareFunc func(http.Handler) http.Handler

// ServerInterfaceWrapper разбирает параметры и вызывает ServerInterface.
type ServerInterfaceWrapper struct {
	Handler            ServerInterface
	HandlerMiddlewares []MiddlewareFunc
	ErrorHandlerFunc   func(w http.ResponseWriter, r *http.Request, err error)
}

func (siw *ServerInterfaceWrapper) serve(w http.ResponseWriter, r *http.Request, fn http.HandlerFunc) {
	handler := http.Handler(fn)
	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}
	handler.ServeHTTP(w, r)
}

func (siw *ServerInterfaceWrapper) bindSubmissionId(w http.ResponseWriter, r *http.Request) (SubmissionId, bool) {
	var submissionId SubmissionId
	err := runtime.BindStyledParameterWithOptions("simple", "submissionId", chi.URLParam(r, "submissionId"), &submissionId,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "submissionId", Err: err})
		return submissionId, false
	}
	return submissionId, true
}

func (siw *ServerInterfaceWrapper) bindDocTypeId(w http.ResponseWriter, r *http.Request) (DocTypeId, bool) {
	var docTypeId DocTypeId
	err := runtime.BindStyledParameterWithOptions("simple", "docTypeId", chi.URLParam(r, "docTypeId"), &docTypeId,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "docTypeId", Err: err})
		return docTypeId, false
	}
	return docTypeId, true
}

// HealthLive operation middleware
func (siw *ServerInterfaceWrapper) HealthLive(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, siw.Handler.HealthLive)
}

// HealthReady operation middleware
func (siw *ServerInterfaceWrapper) HealthReady(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, siw.Handler.HealthReady)
}

// GetMetrics operation middleware
func (siw *ServerInterfaceWrapper) GetMetrics(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, siw.Handler.GetMetrics)
}

// CreateSubmission operation middleware
func (siw *ServerInterfaceWrapper) CreateSubmission(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, siw.Handler.CreateSubmission)
}

// ListMySubmissions operation middleware
func (siw *ServerInterfaceWrapper) ListMySubmissions(w http.ResponseWriter, r *http.Request) {
	var params ListMySubmissionsParams

	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &params.Limit); err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "limit", Err: err})
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "status", r.URL.Query(), &params.Status); err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "status", Err: err})
		return
	}

	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.ListMySubmissions(w, r, params)
	})
}

// GetSubmission operation middleware
func (siw *ServerInterfaceWrapper) GetSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := siw.bindSubmissionId(w, r)
	if !ok {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) { siw.Handler.GetSubmission(w, r, id) })
}

// UpdateSubmission operation middleware
func (siw *ServerInterfaceWrapper) UpdateSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := siw.bindSubmissionId(w, r)
	if !ok {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) { siw.Handler.UpdateSubmission(w, r, id) })
}

// SubmitSubmission operation middleware
func (siw *ServerInterfaceWrapper) SubmitSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := siw.bindSubmissionId(w, r)
	if !ok {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) { siw.Handler.SubmitSubmission(w, r, id) })
}

// GetReviewResult operation middleware
func (siw *ServerInterfaceWrapper) GetReviewResult(w http.ResponseWriter, r *http.Request) {
	id, ok := siw.bindSubmissionId(w, r)
	if !ok {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) { siw.Handler.GetReviewResult(w, r, id) })
}

// GetDocType operation middleware
func (siw *ServerInterfaceWrapper) GetDocType(w http.ResponseWriter, r *http.Request) {
	id, ok := siw.bindDocTypeId(w, r)
	if !ok {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) { siw.Handler.GetDocType(w, r, id) })
}

// GetDeadline operation middleware
func (siw *ServerInterfaceWrapper) GetDeadline(w http.ResponseWriter, r *http.Request) {
	id, ok := siw.bindDocTypeId(w, r)
	if !ok {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) { siw.Handler.GetDeadline(w, r, id) })
}

// SetDeadline operation middleware
func (siw *ServerInterfaceWrapper) SetDeadline(w http.ResponseWriter, r *http.Request) {
	id, ok := siw.bindDocTypeId(w, r)
	if !ok {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) { siw.Handler.SetDeadline(w, r, id) })
}

// ClearDeadline operation middleware
func (siw *ServerInterfaceWrapper) ClearDeadline(w http.ResponseWriter, r *http.Request) {
	id, ok := siw.bindDocTypeId(w, r)
	if !ok {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) { siw.Handler.ClearDeadline(w, r, id) })
}

// DownloadTemplate operation middleware
func (siw *ServerInterfaceWrapper) DownloadTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := siw.bindDocTypeId(w, r)
	if !ok {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) { siw.Handler.DownloadTemplate(w, r, id) })
}

// UploadTemplate operation middleware
func (siw *ServerInterfaceWrapper) UploadTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := siw.bindDocTypeId(w, r)
	if !ok {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) { siw.Handler.UploadTemplate(w, r, id) })
}

// AdminListSubmissions operation middleware
func (siw *ServerInterfaceWrapper) AdminListSubmissions(w http.ResponseWriter, r *http.Request) {
	var params AdminListSubmissionsParams

	if paramValue := r.URL.Query().Get("departmentId"); paramValue == "" {
		siw.ErrorHandlerFunc(w, r, &RequiredParamError{ParamName: "departmentId"})
		return
	}
	if err := runtime.BindQueryParameter("form", true, true, "departmentId", r.URL.Query(), &params.DepartmentId); err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "departmentId", Err: err})
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "status", r.URL.Query(), &params.Status); err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "status", Err: err})
		return
	}

	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.AdminListSubmissions(w, r, params)
	})
}

// AdminGetSubmission operation middleware
func (siw *ServerInterfaceWrapper) AdminGetSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := siw.bindSubmissionId(w, r)
	if !ok {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) { siw.Handler.AdminGetSubmission(w, r, id) })
}

// AdminStartReview operation middleware
func (siw *ServerInterfaceWrapper) AdminStartReview(w http.ResponseWriter, r *http.Request) {
	id, ok := siw.bindSubmissionId(w, r)
	if !ok {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) { siw.Handler.AdminStartReview(w, r, id) })
}

// AdminApproveSubmission operation middleware
func (siw *ServerInterfaceWrapper) AdminApproveSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := siw.bindSubmissionId(w, r)
	if !ok {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) { siw.Handler.AdminApproveSubmission(w, r, id) })
}

// AdminRejectSubmission operation middleware
func (siw *ServerInterfaceWrapper) AdminRejectSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := siw.bindSubmissionId(w, r)
	if !ok {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) { siw.Handler.AdminRejectSubmission(w, r, id) })
}

// AdminDownloadFile operation middleware
func (siw *ServerInterfaceWrapper) AdminDownloadFile(w http.ResponseWriter, r *http.Request) {
	id, ok := siw.bindSubmissionId(w, r)
	if !ok {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) { siw.Handler.AdminDownloadFile(w, r, id) })
}

// ChiServerOptions — параметры HandlerWithOptions.
type ChiServerOptions struct {
	BaseURL          string
	BaseRouter       chi.Router
	Middlewares      []MiddlewareFunc
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// HandlerFromMux регистрирует маршруты на переданном chi.Router.
func HandlerFromMux(si ServerInterface, r chi.Router) http.Handler {
	return HandlerWithOptions(si, ChiServerOptions{
		BaseRouter: r,
	})
}

// HandlerWithOptions регистрирует маршруты с указанными параметрами.
func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r := options.BaseRouter

	if r == nil {
		r = chi.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
	wrapper := ServerInterfaceWrapper{
		Handler:            si,
		HandlerMiddlewares: options.Middlewares,
		ErrorHandlerFunc:   options.ErrorHandlerFunc,
	}

	base := options.BaseURL

	r.Group(func(r chi.Router) {
		r.Get(base+"/health/live", wrapper.HealthLive)
		r.Get(base+"/health/ready", wrapper.HealthReady)
		r.Get(base+"/metrics", wrapper.GetMetrics)

		r.Post(base+"/api/v1/submissions", wrapper.CreateSubmission)
		r.Get(base+"/api/v1/submissions/my", wrapper.ListMySubmissions)
		r.Get(base+"/api/v1/submissions/{submissionId}", wrapper.GetSubmission)
		r.Put(base+"/api/v1/submissions/{submissionId}", wrapper.UpdateSubmission)
		r.Post(base+"/api/v1/submissions/{submissionId}/submit", wrapper.SubmitSubmission)
		r.Get(base+"/api/v1/submissions/{submissionId}/review-result", wrapper.GetReviewResult)

		r.Get(base+"/api/v1/doc-types/{docTypeId}", wrapper.GetDocType)
		r.Get(base+"/api/v1/doc-types/{docTypeId}/deadline", wrapper.GetDeadline)
		r.Put(base+"/api/v1/doc-types/{docTypeId}/deadline", wrapper.SetDeadline)
		r.Delete(base+"/api/v1/doc-types/{docTypeId}/deadline", wrapper.ClearDeadline)
		r.Get(base+"/api/v1/doc-types/{docTypeId}/template", wrapper.DownloadTemplate)
		r.Put(base+"/api/v1/doc-types/{docTypeId}/template", wrapper.UploadTemplate)

		r.Get(base+"/api/v1/admin/submissions", wrapper.AdminListSubmissions)
		r.Get(base+"/api/v1/admin/submissions/{submissionId}", wrapper.AdminGetSubmission)
		r.Post(base+"/api/v1/admin/submissions/{submissionId}/start-review", wrapper.AdminStartReview)
		r.Post(base+"/api/v1/admin/submissions/{submissionId}/approve", wrapper.AdminApproveSubmission)
		r.Post(base+"/api/v1/admin/submissions/{submissionId}/reject", wrapper.AdminRejectSubmission)
		r.Get(base+"/api/v1/admin/submissions/{submissionId}/file", wrapper.AdminDownloadFile)
	})

	return r
}
