package service

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Astemirdum/silent-library/library/internal/errs"
	"github.com/Astemirdum/silent-library/library/internal/model"
	"github.com/Astemirdum/silent-library/pkg/filestore"
)

func (s *Service) ListBooks(ctx context.Context, search string) ([]model.Book, error) {
	return s.repo.ListBooks(ctx, strings.TrimSpace(search))
}

func (s *Service) GetBook(ctx context.Context, id int64) (model.Book, error) {
	return s.repo.GetBook(ctx, id)
}

func (s *Service) CreateBook(ctx context.Context, form model.BookForm, cover *filestore.Upload) (model.Book, error) {
	form = form.Normalize()
	ve := s.validate(form)
	book := form.Book(0)
	book.CoverPic = s.saveCover(cover, ve)
	if !ve.Empty() {
		s.removeFile(book.CoverPic)
		return model.Book{}, ve
	}

	id, err := s.repo.CreateBook(ctx, book)
	if err != nil {
		s.removeFile(book.CoverPic)
		if errors.Is(err, errs.ErrDuplicateISBN) {
			ve.Add("isbn", err.Error())
			return model.Book{}, ve
		}
		return model.Book{}, errors.Wrap(err, "CreateBook")
	}
	return s.repo.GetBook(ctx, id)
}

func (s *Service) UpdateBook(ctx context.Context, id int64, form model.BookForm, cover *filestore.Upload) (model.Book, error) {
	existing, err := s.repo.GetBook(ctx, id)
	if err != nil {
		return model.Book{}, err
	}
	form = form.Normalize()
	ve := s.validate(form)
	book := form.Book(id)
	if form.AvailableCopies == nil {
		book.AvailableCopies = existing.AvailableCopies
	}
	newCover := s.saveCover(cover, ve)
	if !ve.Empty() {
		s.removeFile(newCover)
		return model.Book{}, ve
	}
	book.CoverPic = existing.CoverPic
	if newCover != "" {
		book.CoverPic = newCover
	}

	if err := s.repo.UpdateBook(ctx, book); err != nil {
		s.removeFile(newCover)
		if errors.Is(err, errs.ErrDuplicateISBN) {
			ve.Add("isbn", err.Error())
			return model.Book{}, ve
		}
		return model.Book{}, errors.Wrap(err, "UpdateBook")
	}
	if newCover != "" {
		s.removeFile(existing.CoverPic)
	}
	return s.repo.GetBook(ctx, id)
}

func (s *Service) saveCover(cover *filestore.Upload, ve *errs.ValidationError) string {
	if cover == nil {
		return ""
	}
	rel, err := s.files.Save(filestore.CoverDir, cover)
	switch {
	case err == nil:
		return rel
	case errors.Is(err, filestore.ErrTooLarge):
		ve.Add("cover_pic", "Cover picture is too large. Maximum size is 5MB.")
	case errors.Is(err, filestore.ErrNotAnImage):
		ve.Add("cover_pic", "Upload a valid image. The file you uploaded was either not an image or a corrupted image.")
	default:
		s.log.Error("save cover", zap.Error(err))
		ve.Add("cover_pic", "Cover picture could not be saved.")
	}
	return ""
}

// BookDeletion is the confirmation shown before a delete.
func (s *Service) BookDeletion(ctx context.Context, id int64) (model.BookDeletion, error) {
	book, err := s.repo.GetBook(ctx, id)
	if err != nil {
		return model.BookDeletion{}, err
	}
	return model.NewBookDeletion(book), nil
}

// DeleteBook removes the book with its borrowings and reviews, only once confirmed.
func (s *Service) DeleteBook(ctx context.Context, id int64, confirm bool) (model.BookDeletion, error) {
	deletion, err := s.BookDeletion(ctx, id)
	if err != nil {
		return model.BookDeletion{}, err
	}
	if !confirm {
		return deletion, errs.ErrNotConfirmed
	}
	if err := s.repo.DeleteBook(ctx, id); err != nil {
		return model.BookDeletion{}, err
	}
	s.removeFile(deletion.Book.CoverPic)
	return deletion, nil
}
