package handlers

import (
	"html/template"
	"io/fs"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"mcpanel/internal/service"
)

type PageData struct {
	Title          string
	Status         string
	PollIntervalMS int64
	Command        string
	GracePeriod    string
}

type TemplateHandler struct {
	templates *template.Template
	sv        *service.Supervisor
	log       *zap.SugaredLogger
}

func NewTemplateHandler(templatesFS fs.FS, sv *service.Supervisor, log *zap.SugaredLogger) (*TemplateHandler, error) {
	tmpl, err := template.ParseFS(templatesFS, "*.html")
	if err != nil {
		return nil, err
	}

	return &TemplateHandler{
		templates: tmpl,
		sv:        sv,
		log:       log,
	}, nil
}

func (th *TemplateHandler) buildPageData(pageTitle string) PageData {
	info := th.sv.Info()
	return PageData{
		Title:          "MC Control Panel - " + pageTitle,
		Status:         info.Status,
		PollIntervalMS: th.sv.PollInterval().Milliseconds(),
		Command:        strings.Join(info.Command, " "),
		GracePeriod:    th.sv.GracePeriod().String(),
	}
}

func (th *TemplateHandler) ServeTemplate(templateName, pageTitle string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := th.buildPageData(pageTitle)

		w.Header().Set("Content-Type", "text/html; charset=utf-8")

		if err := th.templates.ExecuteTemplate(w, templateName+".html", data); err != nil {
			th.log.Errorw("error executing template", "Template", templateName, "Error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
	}
}
