package logsvc

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/suprss/suprss/core/user"
)

func Test_person(t *testing.T) {
	usr := user.User{ID: 42, Username: "gopher", Email: "gopher@test.cd"}
	id, uname, email := person(usr)
	assert.Equal(t, "42", id)
	assert.Equal(t, "gopher", uname)
	assert.Equal(t, "gopher@test.cd", email)

	usr.Username = "renamed"
	renamedID, _, _ := person(usr)
	assert.Equal(t, id, renamedID)
}

func TestRollbarLogger_prepare(t *testing.T) {
	l := RollbarLogger{}
	usr := user.User{ID: 42, Username: "gopher"}
	extras := map[string]interface{}{"path": "/api/v1/feeds"}

	got := l.prepare("boom", []interface{}{usr, extras, user.User{ID: 7}})
	assert.Equal(t, []interface{}{"boom", extras}, got)
}
