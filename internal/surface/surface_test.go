package surface

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lalithlochan/beacon/internal/inapp"
	"github.com/lalithlochan/beacon/internal/notification"
	"github.com/lalithlochan/beacon/internal/template"
)

const alert = `{"wzrk_id":"c-1","type":"alert-template","title":{"text":"Hi"},"buttons":[
	{"text":"Open","actions":{"type":"url","android":"myapp://home"}},
	{"text":"Later","actions":{"type":"close"}}
]}`

type recorded struct {
	shown     int
	dismissed []map[string]any
	actions   []string
}

func (r *recorded) callbacks() inapp.Callbacks {
	return inapp.Callbacks{
		OnShow:    func() { r.shown++ },
		OnDismiss: func(formData map[string]any) { r.dismissed = append(r.dismissed, formData) },
		OnAction: func(a *notification.Action, cta string, _ map[string]string) map[string]string {
			r.actions = append(r.actions, string(a.Type)+":"+cta)
			return nil
		},
	}
}

func show(t *testing.T, s *Log, r *recorded) *notification.Notification {
	t.Helper()
	n := notification.FromJSON([]byte(alert), false)
	require.False(t, n.HasError(), n.Err())
	require.NoError(t, s.Show(context.Background(), n, inapp.SurfaceConfig{AccountID: "a"}, r.callbacks()))
	return n
}

func TestLog_ShowAndDismiss(t *testing.T) {
	s := NewLog(Config{}, zap.NewNop())
	r := &recorded{}

	n := show(t, s, r)
	assert.Equal(t, 1, r.shown)
	assert.Equal(t, n, s.Active())

	err := s.Show(context.Background(), n, inapp.SurfaceConfig{}, r.callbacks())
	assert.ErrorIs(t, err, ErrBusy)

	require.NoError(t, s.Dismiss(map[string]any{"score": 4}))
	assert.Nil(t, s.Active())
	assert.Equal(t, []map[string]any{{"score": 4}}, r.dismissed)

	assert.ErrorIs(t, s.Dismiss(nil), ErrNothingShowing)
}

func TestLog_Click(t *testing.T) {
	s := NewLog(Config{}, zap.NewNop())
	r := &recorded{}
	show(t, s, r)

	_, err := s.Click(5)
	assert.ErrorIs(t, err, ErrNoButton)

	_, err = s.Click(0)
	require.NoError(t, err)
	assert.NotNil(t, s.Active())

	_, err = s.Click(1)
	require.NoError(t, err)
	assert.Nil(t, s.Active())
	assert.Equal(t, []string{"url:Open", "close:Later"}, r.actions)
	assert.Len(t, r.dismissed, 1)
}

func TestLog_AutoDismiss(t *testing.T) {
	s := NewLog(Config{AutoDismiss: 10 * time.Millisecond}, zap.NewNop())
	r := &recorded{}
	show(t, s, r)

	assert.Eventually(t, func() bool { return s.Active() == nil }, time.Second, 5*time.Millisecond)
}

func TestDevice_Update(t *testing.T) {
	d := NewDevice(DeviceConfig{Foreground: true, Online: true, AppVersion: "3.1.0"}, zap.NewNop())

	off := false
	screen := "Checkout"
	st := d.Update(DeviceUpdate{Online: &off, Activity: &screen})

	assert.True(t, st.Foreground)
	assert.False(t, st.Online)
	assert.False(t, d.IsOnline())
	assert.Equal(t, "Checkout", d.CurrentActivity())
	assert.Equal(t, "3.1.0", d.AppLaunchFields()["App Version"])

	d.RequestPushPermission(false)
	assert.True(t, d.HasPushPermission())
}

func TestPresenter_NonVisualFinishesImmediately(t *testing.T) {
	reg := template.NewRegistry(zap.NewNop())
	require.NoError(t, reg.Register(&template.Template{
		Name:      "Confetti",
		Args:      []template.Arg{{Name: "colour", Type: template.ArgString, Default: "gold"}},
		Presenter: NewPresenter(zap.NewNop()),
	}))

	n := notification.FromJSON([]byte(`{"wzrk_id":"c","type":"custom-code","templateName":"Confetti"}`), false)
	require.False(t, n.HasError(), n.Err())

	l := &templateEvents{}
	require.NoError(t, reg.Present(n, l))

	assert.Equal(t, 1, l.shown)
	assert.Equal(t, 1, l.dismissed)
}

type templateEvents struct{ shown, dismissed int }

func (e *templateEvents) OnTemplateShown(*notification.Notification)     { e.shown++ }
func (e *templateEvents) OnTemplateDismissed(*notification.Notification) { e.dismissed++ }
