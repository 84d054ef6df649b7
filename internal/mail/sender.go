package mail

import (
	"sync"

	"github.com/gofiber/template/html/v2"
	"github.com/valyala/bytebufferpool"
)

var (
	htmlEngine *html.Engine
	initOnce   sync.Once
)

// Initialize loads the mail template engine. Must be called before any
// Send* helper renders a message body.
func Initialize(engine *html.Engine) {
	initOnce.Do(func() {
		if err := engine.Load(); err != nil {
			panic(err)
		}
		htmlEngine = engine
	})
}

func renderHTML(template string, binding interface{}) (string, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if err := htmlEngine.Render(buf, template, binding); err != nil {
		return "", err
	}
	return buf.String(), nil
}

type Message struct {
	From    string
	To      []string
	Cc      []string
	Subject string
	Body    string
	IsHTML  bool
}

type MailSender interface {
	Send(message *Message) error
}
