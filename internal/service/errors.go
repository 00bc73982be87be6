package service

import (
	"errors"

	"github.com/d60-Lab/review-feed/internal/repository"
	"github.com/d60-Lab/review-feed/pkg/apperr"
)

const (
	msgUnauthenticated   = "Usuário não autenticado"
	msgCaptionRequired   = "Caption é obrigatório. Forneça um texto para o post."
	msgRatingRange       = "Rating deve estar entre 1 e 5"
	msgPostNotFound      = "Post não encontrado"
	msgCommentNotFound   = "Comentário não encontrado"
	msgUserNotFound      = "Usuário não encontrado"
	msgForbiddenPost     = "Você não tem permissão para deletar este post"
	msgForbiddenComment  = "Você não tem permissão para deletar este comentário"
	msgFollowSelf        = "Você não pode seguir a si mesmo"
	msgEmailTaken        = "Este email já está em uso"
	msgUsernameTaken     = "Este username já está em uso"
	msgInvalidCredential = "Credenciais inválidas"
)

// ErrFollowSelf is returned (wrapped) when a user tries to follow themselves.
var ErrFollowSelf = errors.New("cannot follow self")

// fromStore translates a repository error into the API taxonomy.
func fromStore(err error, notFound string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, repository.ErrForeignKey):
		return apperr.Wrap(apperr.KindNotFound, notFound, err)
	case errors.Is(err, repository.ErrDuplicateKey):
		return apperr.Wrap(apperr.KindDuplicateKey, "Registro já existe", err)
	default:
		return apperr.Unavailable(err)
	}
}
