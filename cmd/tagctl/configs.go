package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bigkaa/goarttag/internal/domain/model"
	"github.com/bigkaa/goarttag/internal/service"
)

func newConfigsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "configs",
		Aliases: []string{"config"},
		Short:   "Конфигурации тегов",
	}
	cmd.AddCommand(newConfigsListCmd(), newConfigsGetCmd(), newConfigsCreateCmd(), newConfigsDeleteCmd())
	return cmd
}

func newConfigsListCmd() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Список конфигураций",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			items, _, err := a.configs.List(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			return printConfigs(cmd.OutOrStdout(), format, items)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "Максимум записей")
	cmd.Flags().IntVar(&offset, "offset", 0, "Смещение")
	return cmd
}

func newConfigsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id|entity-type>",
		Short: "Показать конфигурацию по UUID или типу сущности",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			cfg, err := a.configs.GetByID(cmd.Context(), args[0])
			if err != nil {
				cfg, err = a.configs.Get(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			return printConfigs(cmd.OutOrStdout(), format, []*model.TagConfig{cfg})
		},
	}
}

func newConfigsCreateCmd() *cobra.Command {
	var (
		params       service.CreateConfigParams
		formatName   string
		separator    string
		padding      int
		autoGenerate bool
		description  string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Создать конфигурацию",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := connect(cmd.Context())
			if err != nil {
				return err
			}

			params.Format = model.Format(formatName)
			flags := cmd.Flags()
			if flags.Changed("separator") {
				params.Separator = &separator
			}
			if flags.Changed("padding") {
				params.PaddingLength = &padding
			}
			if flags.Changed("auto-generate") {
				params.AutoGenerate = &autoGenerate
			}
			if flags.Changed("description") {
				params.Description = &description
			}

			cfg, err := a.configs.Create(cmd.Context(), params)
			if err != nil {
				return err
			}
			return printConfigs(cmd.OutOrStdout(), format, []*model.TagConfig{cfg})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&params.EntityType, "entity-type", "", "Тип сущности (обязательно)")
	flags.StringVar(&params.Prefix, "prefix", "", "Префикс тега (обязательно)")
	flags.StringVar(&formatName, "tag-format", string(model.FormatSequential),
		fmt.Sprintf("Формат генерации: %v", model.Formats()))
	flags.StringVar(&separator, "separator", model.DefaultSeparator, "Разделитель")
	flags.IntVar(&padding, "padding", model.DefaultPaddingLength, "Количество цифр номера")
	flags.BoolVar(&autoGenerate, "auto-generate", true, "Генерировать тег при сохранении сущности")
	flags.StringVar(&description, "description", "", "Описание")
	_ = cmd.MarkFlagRequired("entity-type")
	_ = cmd.MarkFlagRequired("prefix")
	return cmd
}

func newConfigsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Удалить конфигурацию (выданные теги остаются)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.configs.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Конфигурация %s удалена\n", args[0])
			return nil
		},
	}
}
