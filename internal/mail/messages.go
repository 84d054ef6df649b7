package mail

import (
	"github.com/gofiber/fiber/v2"
)

func SendResetPasswordLink(sender MailSender, toEmail string, resetLink string, expireMinutes int) error {
	params := fiber.Map{
		"resetLink":     resetLink,
		"expireMinutes": expireMinutes,
	}
	body, err := renderHTML("mail/reset-password", params)
	if err != nil {
		return err
	}
	return sender.Send(&Message{
		To:      []string{toEmail},
		Subject: "Reset your password",
		Body:    body,
		IsHTML:  true,
	})
}

func SendPasswordChangedNotice(sender MailSender, toEmail string) error {
	body, err := renderHTML("mail/password-changed", fiber.Map{})
	if err != nil {
		return err
	}
	return sender.Send(&Message{
		To:      []string{toEmail},
		Subject: "Your password was changed",
		Body:    body,
		IsHTML:  true,
	})
}
