package notify

import (
	"bytes"
	"text/template"
	"time"

	"github.com/Astemirdum/silent-library/library/internal/model"
)

type Kind string

const (
	KindWelcome  Kind = "welcome"
	KindBorrowed Kind = "borrowed"
)

// Event is one outgoing email, serialized as JSON on the notifications topic.
type Event struct {
	Kind      Kind      `json:"kind"`
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

var welcomeTmpl = template.Must(template.New("welcome").Parse(`Dear {{.User.FirstName}} {{.User.LastName}},

Thank you for registering with Silent Library!

Your account has been successfully created with the following details:
Username: {{.User.Username}}
Email: {{.User.Email}}
Name: {{.User.FirstName}} {{.User.LastName}}

You can now login to access our library services, borrow books, and manage your reading lists.

Click here to login: {{.LoginURL}}

Happy Reading!

Best regards,
The Silent Library Team
`))

var borrowedTmpl = template.Must(template.New("borrowed").Parse(`Hello {{.User.FirstName}},

You have successfully borrowed "{{.Book.Title}}" by {{.Book.Author}}.

Borrowing Details:
- Borrowed Date: {{.Borrowing.BorrowedAt.Format "January 02, 2006"}}
- Due Date: {{.Borrowing.DueAt.Format "January 02, 2006"}}
- Book ISBN: {{.Book.ISBN}}

Please return the book by the due date to avoid late fees.

Thank you for using Silent Library!
`))

func render(t *template.Template, data any) string {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return ""
	}
	return buf.String()
}

func WelcomeEvent(u model.User, loginURL string, now time.Time) Event {
	return Event{
		Kind:    KindWelcome,
		To:      u.Email,
		Subject: "Welcome to Silent Library - Registration Confirmation",
		Body: render(welcomeTmpl, struct {
			User     model.User
			LoginURL string
		}{u, loginURL}),
		CreatedAt: now,
	}
}

func BorrowedEvent(u model.User, b model.Book, br model.Borrowing, now time.Time) Event {
	return Event{
		Kind:    KindBorrowed,
		To:      u.Email,
		Subject: "Book Borrowed: " + b.Title,
		Body: render(borrowedTmpl, struct {
			User      model.User
			Book      model.Book
			Borrowing model.Borrowing
		}{u, b, br}),
		CreatedAt: now,
	}
}
