package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTeam(t *testing.T) {
	for _, team := range []Team{TeamRed, TeamBlue} {
		parsed, ok := ParseTeam(team.String())
		assert.True(t, ok)
		assert.Equal(t, team, parsed)
		assert.True(t, team.Valid())
		assert.Equal(t, team, team.Opponent().Opponent())
	}

	_, ok := ParseTeam("green")
	assert.False(t, ok)
	assert.False(t, Team(5).Valid())
	assert.Equal(t, "team(5)", Team(5).String())
}

func TestClass(t *testing.T) {
	tests := []struct {
		class  Class
		name   string
		ranged bool
	}{
		{ClassUnassigned, "unassigned", false},
		{ClassKnight, "knight", false},
		{ClassArcher, "archer", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.class.String())
			assert.Equal(t, tt.class, ParseClass(tt.name))
			assert.Equal(t, tt.ranged, tt.class.Ranged())
		})
	}
	assert.Equal(t, ClassUnassigned, ParseClass("wizard"))
}

func TestCompose(t *testing.T) {
	a := Compose(AnimWalk|AnimAttack, FacingRight)
	assert.Equal(t, Animation(19), a)
	assert.True(t, a.Has(AnimWalk))
	assert.True(t, a.Has(AnimAttack))
	assert.True(t, a.Has(AnimRight))
	assert.False(t, a.Has(AnimJump))

	assert.Equal(t, AnimIdle, Compose(AnimIdle, FacingLeft))
}

func TestControls(t *testing.T) {
	var c Controls
	assert.False(t, c.Pressed(KeyA))

	c = c.Press(KeyA).Aim(45)
	assert.True(t, c.Pressed(KeyA))
	assert.False(t, c.Pressed(KeyD))
	assert.Equal(t, float32(45), c.Angle())

	// held keys do not trigger actions
	c[KeyW] = ControlObject{Type: ControlHold, IsDown: true}
	assert.False(t, c.Pressed(KeyW))

	assert.False(t, c.Pressed(Key(-1)))
	assert.False(t, c.Pressed(Key(ControlSlots)))

	var nilControls *Controls
	assert.False(t, nilControls.Pressed(KeyA))
	assert.Zero(t, nilControls.Angle())
}

func TestRectContains(t *testing.T) {
	r := Rect{X: 2, Y: 3, Width: 1, Height: 2}
	assert.True(t, r.Contains(2, 3))
	assert.True(t, r.Contains(3, 5))
	assert.True(t, r.Contains(2.5, 4))
	assert.False(t, r.Contains(1.9, 4))
	assert.False(t, r.Contains(2.5, 5.1))
}
