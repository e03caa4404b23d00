package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bigkaa/goarttag/internal/domain/model"
	"github.com/bigkaa/goarttag/internal/repository"
	"github.com/bigkaa/goarttag/internal/service"
)

func newTagsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tags",
		Aliases: []string{"tag"},
		Short:   "Теги сущностей",
	}
	cmd.AddCommand(newTagsListCmd(), newTagsRegenerateCmd(), newTagsDeleteCmd(), newTagsImportCmd())
	return cmd
}

func newTagsListCmd() *cobra.Command {
	var params repository.TagSearchParams

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Поиск тегов",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			items, _, err := a.tags.List(cmd.Context(), params)
			if err != nil {
				return err
			}
			return printTags(cmd.OutOrStdout(), format, items)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&params.OwnerType, "owner-type", "", "Тип сущности-владельца")
	flags.StringVar(&params.Value, "value", "", "Префикс значения тега")
	flags.IntVar(&params.Limit, "limit", 100, "Максимум записей")
	flags.IntVar(&params.Offset, "offset", 0, "Смещение")
	return cmd
}

func newTagsRegenerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "regenerate <id>...",
		Short: "Перегенерировать теги по текущим конфигурациям",
		Args:  cobra.RangeArgs(1, service.MaxBulkItems),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			a, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			result, err := a.bulk.Regenerate(cmd.Context(), ids)
			if err != nil {
				return err
			}
			return printBulkResult(cmd.OutOrStdout(), format, result)
		},
	}
}

func newTagsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Удалить теги",
		Args:  cobra.RangeArgs(1, service.MaxBulkItems),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			a, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			n, err := a.bulk.Delete(cmd.Context(), ids)
			if err != nil {
				return err
			}
			return printBulkDeleted(cmd.OutOrStdout(), format, n)
		},
	}
}

func newTagsImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Импортировать готовые теги (все или ни одного)",
		Long: `Файл — YAML-список записей:

  - owner_type: equipment
    owner_id: "42"
    value: EQ-042`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			tags, err := parseImport(f)
			if err != nil {
				return err
			}

			a, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			err = a.txs.RunInTx(cmd.Context(), func(tx pgx.Tx) error {
				repo := repository.NewTagRepository(tx)
				for _, tag := range tags {
					if err := repo.Create(cmd.Context(), tag); err != nil {
						return fmt.Errorf("%s/%s: %w", tag.OwnerType, tag.OwnerID, err)
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
			return printTags(cmd.OutOrStdout(), format, tags)
		},
	}
}

// importEntry — запись файла импорта.
type importEntry struct {
	OwnerType string `yaml:"owner_type"`
	OwnerID   string `yaml:"owner_id"`
	Value     string `yaml:"value"`
}

// parseImport читает и проверяет файл импорта. Повтор владельца — ошибка.
func parseImport(r io.Reader) ([]*model.Tag, error) {
	var entries []importEntry
	if err := yaml.NewDecoder(r).Decode(&entries); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("файл импорта пуст")
		}
		return nil, fmt.Errorf("ошибка разбора файла импорта: %w", err)
	}
	if len(entries) == 0 {
		return nil, errors.New("файл импорта пуст")
	}

	seen := make(map[model.EntityRef]bool, len(entries))
	tags := make([]*model.Tag, 0, len(entries))
	for i, e := range entries {
		if e.OwnerType == "" || e.OwnerID == "" {
			return nil, fmt.Errorf("запись %d: owner_type и owner_id обязательны", i+1)
		}
		if err := service.ValidateTagValue(e.Value); err != nil {
			return nil, fmt.Errorf("запись %d: %w", i+1, err)
		}
		ref := model.EntityRef{Type: e.OwnerType, ID: e.OwnerID}
		if seen[ref] {
			return nil, fmt.Errorf("запись %d: повтор владельца %s/%s", i+1, e.OwnerType, e.OwnerID)
		}
		seen[ref] = true
		tags = append(tags, &model.Tag{Value: e.Value, OwnerType: e.OwnerType, OwnerID: e.OwnerID})
	}
	return tags, nil
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, s := range args {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("некорректный идентификатор тега %q", s)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
