package mail

import (
	"bytes"
	"embed"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

//go:embed templates/*
var templateFS embed.FS

var (
	htmlTemplates = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/*.html"))
	textTemplates = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/*.txt"))

	markdown = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithHardWraps()),
	)
	policy = bluemonday.UGCPolicy().RequireNoReferrerOnLinks(true)
)

// CommentPostedData is what the comment notification shows the post owner
type CommentPostedData struct {
	OwnerName     string
	OwnerEmail    string
	CommenterName string
	PostTitle     string
	CommentBody   string
	Approved      bool
	PostURL       string
	SiteName      string
}

// CommentPostedSubject returns the subject line for a comment notification
func CommentPostedSubject(postTitle string) string {
	return "New Comment on Your Post: " + postTitle
}

// RenderCommentPosted builds the notification sent to a post owner when
// someone comments on their post
func RenderCommentPosted(data *CommentPostedData) (*Message, error) {
	view := struct {
		*CommentPostedData
		CommentHTML htmltemplate.HTML
	}{
		CommentPostedData: data,
		CommentHTML:       renderMarkdown(data.CommentBody),
	}

	var htmlBody bytes.Buffer
	if err := htmlTemplates.ExecuteTemplate(&htmlBody, "comment_posted.html", view); err != nil {
		return nil, err
	}

	var textBody bytes.Buffer
	if err := textTemplates.ExecuteTemplate(&textBody, "comment_posted.txt", view); err != nil {
		return nil, err
	}

	return &Message{
		To:       data.OwnerEmail,
		ToName:   data.OwnerName,
		Subject:  CommentPostedSubject(data.PostTitle),
		HTMLBody: htmlBody.String(),
		TextBody: strings.TrimSpace(textBody.String()) + "\n",
	}, nil
}

// renderMarkdown converts a comment body to sanitised HTML. On a conversion
// error the escaped plain text is used.
func renderMarkdown(source string) htmltemplate.HTML {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(source), &buf); err != nil {
		return htmltemplate.HTML(htmltemplate.HTMLEscapeString(source))
	}
	return htmltemplate.HTML(policy.SanitizeBytes(buf.Bytes()))
}
