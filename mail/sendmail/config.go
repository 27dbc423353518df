package sendmail

// Config содержит параметры локального sendmail
type Config struct {
	Path string `envconfig:"SENDMAIL_PATH" default:"/usr/sbin/sendmail"` // исполняемый файл (sendmail, msmtp, ssmtp)
	From string `envconfig:"SENDMAIL_FROM"`                              // отправитель по умолчанию
}
