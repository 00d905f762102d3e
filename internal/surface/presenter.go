package surface

import (
	"go.uber.org/zap"

	"github.com/lalithlochan/beacon/internal/template"
)

// Presenter renders custom templates to the log. Visual templates stay up
// until closed; the rest finish as soon as they run.
type Presenter struct {
	logger *zap.Logger
}

var _ template.Presenter = (*Presenter)(nil)

func NewPresenter(logger *zap.Logger) *Presenter {
	return &Presenter{logger: logger}
}

func (p *Presenter) OnPresent(c *template.Context) error {
	fields := []zap.Field{
		zap.String("template", c.Template.Name),
		zap.String("campaign_id", c.Notification.CampaignID),
		zap.Bool("visual", c.Template.Visual),
	}
	for _, arg := range c.Template.Args {
		switch arg.Type {
		case template.ArgFile:
			fields = append(fields, zap.String(arg.Name, c.File(arg.Name)))
		case template.ArgBoolean:
			fields = append(fields, zap.Bool(arg.Name, c.Bool(arg.Name)))
		case template.ArgNumber:
			fields = append(fields, zap.Float64(arg.Name, c.Number(arg.Name)))
		case template.ArgString:
			fields = append(fields, zap.String(arg.Name, c.String(arg.Name)))
		}
	}
	p.logger.Info("presenting custom template", fields...)

	c.Shown()
	if !c.Template.Visual {
		c.Dismissed()
	}
	return nil
}

func (p *Presenter) OnClose(c *template.Context) {
	p.logger.Info("closing custom template",
		zap.String("template", c.Template.Name),
		zap.String("campaign_id", c.Notification.CampaignID),
	)
}
