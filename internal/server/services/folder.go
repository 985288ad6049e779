package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/privylock/internal/common"
	"github.com/dmitrijs2005/privylock/internal/logging"
	"github.com/dmitrijs2005/privylock/internal/server/models"
	"github.com/dmitrijs2005/privylock/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

const (
	msgParentNotOwned     = "Parent folder must belong to you"
	msgParentCategory     = "Parent folder must be in same category"
	msgOwnParent          = "Folder cannot be its own parent"
	msgParentIsDescendant = "Folder cannot be moved into its own subfolder"
	msgEmptyFolderName    = "Folder name cannot be empty"
	msgCategoryLocked     = "Cannot change the category of a folder that contains subfolders or documents"
)

// FolderInput carries create and partial-update fields. A nil field is
// left unchanged. SetParent distinguishes "move to root" (ParentID nil)
// from "parent not supplied".
type FolderInput struct {
	CategoryID    *int64
	EncryptedName *string
	SetParent     bool
	ParentID      *string
	Color         *string
	Icon          *string
}

// FolderDetail is a folder with its recursive document count and category.
type FolderDetail struct {
	*models.Folder
	DocumentCount int64
	Category      *models.Category
}

// FolderTree is one node of a folder tree. DocumentCount includes every
// descendant.
type FolderTree struct {
	Folder        *models.Folder
	DocumentCount int64
	Subfolders    []*FolderTree
	Documents     []*models.Document
}

type FolderService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	categories  *CategoryService
	logger      logging.Logger
}

func NewFolderService(db *sql.DB, m repomanager.RepositoryManager, categories *CategoryService, logger logging.Logger) *FolderService {
	return &FolderService{db: db, repomanager: m, categories: categories, logger: logger}
}

// recursiveCounts sums direct document counts up the parent chain. Each
// folder is counted once even if the stored chain contains a cycle.
func recursiveCounts(folders []*models.Folder, direct map[string]int64) map[string]int64 {
	children := make(map[string][]string, len(folders))
	for _, f := range folders {
		if f.ParentID != nil {
			children[*f.ParentID] = append(children[*f.ParentID], f.ID)
		}
	}

	total := make(map[string]int64, len(folders))
	var sum func(id string, visiting map[string]bool) int64
	sum = func(id string, visiting map[string]bool) int64 {
		if n, ok := total[id]; ok {
			return n
		}
		if visiting[id] {
			return 0
		}
		visiting[id] = true
		n := direct[id]
		for _, c := range children[id] {
			n += sum(c, visiting)
		}
		total[id] = n
		return n
	}

	for _, f := range folders {
		sum(f.ID, map[string]bool{})
	}
	return total
}

func (s *FolderService) detail(ctx context.Context, f *models.Folder, counts map[string]int64) *FolderDetail {
	d := &FolderDetail{Folder: f, DocumentCount: counts[f.ID]}
	c, err := s.categories.Lookup(ctx, f.CategoryID)
	if err != nil {
		s.logger.Warn(ctx, "folder category lookup failed", "folder_id", f.ID, "error", err)
	} else {
		d.Category = c
	}
	return d
}

func (s *FolderService) counts(ctx context.Context, userID string) (map[string]int64, error) {
	repo := s.repomanager.Folders(s.db)
	all, err := repo.List(ctx, userID, models.FolderQuery{})
	if err != nil {
		return nil, err
	}
	direct, err := repo.DirectDocumentCounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	return recursiveCounts(all, direct), nil
}

func (s *FolderService) List(ctx context.Context, userID string, q models.FolderQuery) ([]*FolderDetail, error) {
	if q.ParentID != nil && !validID(*q.ParentID) {
		return []*FolderDetail{}, nil
	}

	list, err := s.repomanager.Folders(s.db).List(ctx, userID, q)
	if err != nil {
		return nil, err
	}
	counts, err := s.counts(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]*FolderDetail, 0, len(list))
	for _, f := range list {
		out = append(out, s.detail(ctx, f, counts))
	}
	return out, nil
}

func (s *FolderService) Get(ctx context.Context, userID, id string) (*FolderDetail, error) {
	if !validID(id) {
		return nil, common.ErrorNotFound
	}
	f, err := s.repomanager.Folders(s.db).GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	counts, err := s.counts(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, f, counts), nil
}

// checkParent validates a parent reference for folder id (empty on create).
func (s *FolderService) checkParent(ctx context.Context, v *common.ValidationError, userID, id string, categoryID int64, parentID string) error {
	if id != "" && parentID == id {
		v.Add("parent", msgOwnParent)
		return nil
	}
	if !validID(parentID) {
		v.Add("parent", msgParentNotOwned)
		return nil
	}

	repo := s.repomanager.Folders(s.db)
	parent, err := repo.GetByID(ctx, userID, parentID)
	if errors.Is(err, common.ErrorNotFound) {
		v.Add("parent", msgParentNotOwned)
		return nil
	}
	if err != nil {
		return err
	}
	if parent.CategoryID != categoryID {
		v.Add("parent", msgParentCategory)
		return nil
	}

	if id != "" {
		subtree, err := repo.Subtree(ctx, userID, id)
		if err != nil {
			return err
		}
		for _, f := range subtree {
			if f.ID == parentID {
				v.Add("parent", msgParentIsDescendant)
				break
			}
		}
	}
	return nil
}

func (s *FolderService) checkCategory(ctx context.Context, v *common.ValidationError, id int64) error {
	_, err := s.categories.Lookup(ctx, id)
	if errors.Is(err, common.ErrorNotFound) {
		v.Add("category", fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", id))
		return nil
	}
	return err
}

func (s *FolderService) Create(ctx context.Context, userID string, in FolderInput) (*FolderDetail, error) {
	v := &common.ValidationError{}

	if in.CategoryID == nil {
		v.Add("category", msgRequired)
	} else if err := s.checkCategory(ctx, v, *in.CategoryID); err != nil {
		return nil, err
	}
	if in.EncryptedName == nil || strings.TrimSpace(*in.EncryptedName) == "" {
		v.Add("encrypted_name", msgEmptyFolderName)
	}
	if v.Empty() && in.ParentID != nil {
		if err := s.checkParent(ctx, v, userID, "", *in.CategoryID, *in.ParentID); err != nil {
			return nil, err
		}
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	f := &models.Folder{
		ID:            uuid.NewString(),
		UserID:        userID,
		CategoryID:    *in.CategoryID,
		EncryptedName: strings.TrimSpace(*in.EncryptedName),
		ParentID:      in.ParentID,
		Color:         models.DefaultFolderColor,
		Icon:          models.DefaultFolderIcon,
	}
	if in.Color != nil && *in.Color != "" {
		f.Color = *in.Color
	}
	if in.Icon != nil && *in.Icon != "" {
		f.Icon = *in.Icon
	}

	created, err := s.repomanager.Folders(s.db).Create(ctx, f)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "folder created", "user_id", userID, "folder_id", created.ID)
	return s.detail(ctx, created, nil), nil
}

func (s *FolderService) Update(ctx context.Context, userID, id string, in FolderInput) (*FolderDetail, error) {
	if !validID(id) {
		return nil, common.ErrorNotFound
	}
	repo := s.repomanager.Folders(s.db)
	f, err := repo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	v := &common.ValidationError{}

	if in.EncryptedName != nil {
		name := strings.TrimSpace(*in.EncryptedName)
		if name == "" {
			v.Add("encrypted_name", msgEmptyFolderName)
		}
		f.EncryptedName = name
	}

	if in.CategoryID != nil && *in.CategoryID != f.CategoryID {
		if err := s.checkCategory(ctx, v, *in.CategoryID); err != nil {
			return nil, err
		}
		busy, err := repo.HasContent(ctx, f.ID)
		if err != nil {
			return nil, err
		}
		if busy {
			v.Add("category", msgCategoryLocked)
		}
		f.CategoryID = *in.CategoryID
	}

	if in.SetParent {
		f.ParentID = in.ParentID
	}
	if v.Empty() && f.ParentID != nil && (in.SetParent || in.CategoryID != nil) {
		if err := s.checkParent(ctx, v, userID, f.ID, f.CategoryID, *f.ParentID); err != nil {
			return nil, err
		}
	}

	if in.Color != nil {
		f.Color = *in.Color
	}
	if in.Icon != nil {
		f.Icon = *in.Icon
	}

	if err := v.OrNil(); err != nil {
		return nil, err
	}

	updated, err := repo.Update(ctx, f)
	if err != nil {
		return nil, err
	}
	counts, err := s.counts(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, updated, counts), nil
}

// Delete removes the folder and its subfolders. Documents inside are kept
// and end up outside any folder.
func (s *FolderService) Delete(ctx context.Context, userID, id string) error {
	if !validID(id) {
		return common.ErrorNotFound
	}
	if err := s.repomanager.Folders(s.db).Delete(ctx, userID, id); err != nil {
		return err
	}
	s.logger.Info(ctx, "folder deleted", "user_id", userID, "folder_id", id)
	return nil
}

// Tree returns the folder with all descendants and the non-deleted
// documents directly inside each of them.
func (s *FolderService) Tree(ctx context.Context, userID, id string) (*FolderTree, error) {
	if !validID(id) {
		return nil, common.ErrorNotFound
	}

	folders, err := s.repomanager.Folders(s.db).Subtree(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(folders))
	byID := make(map[string]*models.Folder, len(folders))
	children := make(map[string][]*models.Folder)
	for _, f := range folders {
		ids = append(ids, f.ID)
		byID[f.ID] = f
		if f.ParentID != nil && f.ID != id {
			children[*f.ParentID] = append(children[*f.ParentID], f)
		}
	}

	docs, err := s.repomanager.Documents(s.db).ListByFolders(ctx, userID, ids)
	if err != nil {
		return nil, err
	}
	docsByFolder := make(map[string][]*models.Document)
	for _, d := range docs {
		if d.FolderID != nil {
			docsByFolder[*d.FolderID] = append(docsByFolder[*d.FolderID], d)
		}
	}

	root, ok := byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}

	visited := make(map[string]bool, len(folders))
	var build func(f *models.Folder) *FolderTree
	build = func(f *models.Folder) *FolderTree {
		visited[f.ID] = true
		node := &FolderTree{
			Folder:     f,
			Subfolders: []*FolderTree{},
			Documents:  docsByFolder[f.ID],
		}
		if node.Documents == nil {
			node.Documents = []*models.Document{}
		}
		node.DocumentCount = int64(len(node.Documents))
		for _, c := range children[f.ID] {
			if visited[c.ID] {
				continue
			}
			sub := build(c)
			node.DocumentCount += sub.DocumentCount
			node.Subfolders = append(node.Subfolders, sub)
		}
		return node
	}
	return build(root), nil
}
