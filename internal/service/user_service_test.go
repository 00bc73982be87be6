package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/review-feed/internal/model"
	"github.com/d60-Lab/review-feed/pkg/apperr"
	"github.com/d60-Lab/review-feed/pkg/auth"
)

func validInput() RegisterInput {
	return RegisterInput{
		Username:  "alice",
		Email:     "Alice@Example.com ",
		Password:  "secret1",
		BirthDate: "15/08/1990",
		FullName:  "Alice Doe",
	}
}

func TestRegister_Success(t *testing.T) {
	f := newFixture(t)
	u, err := f.users.Register(context.Background(), validInput())
	require.NoError(t, err)

	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, model.UserTypeStandard, u.UserType)
	assert.Equal(t, 1990, u.BirthDate.Year())
	assert.True(t, auth.CheckPassword(u.Password, "secret1"))
	assert.Nil(t, u.Phone)
}

func TestRegister_FieldMessages(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		mutate func(*RegisterInput)
		msg    string
	}{
		{func(in *RegisterInput) { in.Username = " " }, "Username é obrigatório"},
		{func(in *RegisterInput) { in.Username = "ab" }, "Username deve ter pelo menos 3 caracteres"},
		{func(in *RegisterInput) { in.Email = "" }, "Email é obrigatório"},
		{func(in *RegisterInput) { in.Email = "not-an-email" }, "Email inválido"},
		{func(in *RegisterInput) { in.Password = "" }, "Senha é obrigatória"},
		{func(in *RegisterInput) { in.Password = "123" }, "Senha deve ter pelo menos 6 caracteres"},
		{func(in *RegisterInput) { in.BirthDate = "" }, "Data de nascimento é obrigatória"},
		{func(in *RegisterInput) { in.BirthDate = "1990-08-15" }, "Formato de data inválido. Use DD/MM/YYYY"},
		{func(in *RegisterInput) { in.BirthDate = "15/13/1990" }, "Mês inválido. Use 01-12"},
		{func(in *RegisterInput) { in.BirthDate = "32/01/1990" }, "Dia inválido. Use 01-31"},
		{func(in *RegisterInput) { in.BirthDate = "31/02/1990" }, "Data de nascimento inválida"},
	}
	for _, tc := range cases {
		in := validInput()
		tc.mutate(&in)
		_, err := f.users.Register(context.Background(), in)
		require.Error(t, err, tc.msg)
		assert.True(t, apperr.Is(err, apperr.KindValidation), tc.msg)
		assert.Equal(t, tc.msg, err.(*apperr.Error).Message)
	}
}

func TestRegister_Duplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.users.Register(ctx, validInput())
	require.NoError(t, err)

	in := validInput()
	in.Username = "someone"
	_, err = f.users.Register(ctx, in)
	require.True(t, apperr.Is(err, apperr.KindDuplicateKey))
	assert.Equal(t, "Este email já está em uso", err.(*apperr.Error).Message)

	in = validInput()
	in.Email = "other@example.com"
	_, err = f.users.Register(ctx, in)
	require.True(t, apperr.Is(err, apperr.KindDuplicateKey))
	assert.Equal(t, "Este username já está em uso", err.(*apperr.Error).Message)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u, err := f.users.Register(ctx, validInput())
	require.NoError(t, err)

	tok, got, err := f.users.Login(ctx, "ALICE@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "tok-"+u.ID, tok)
	assert.Equal(t, u.ID, got.ID)

	_, _, err = f.users.Login(ctx, "alice@example.com", "wrong")
	assert.True(t, apperr.Is(err, apperr.KindAuth))
	_, _, err = f.users.Login(ctx, "nobody@example.com", "secret1")
	assert.True(t, apperr.Is(err, apperr.KindAuth))
}
