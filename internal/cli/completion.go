package cli

import (
	"fmt"
	"io"
)

// BashCompletion completes pipeline commands and their first arguments.
const BashCompletion = `#!/bin/bash
# Bash completion for the pipeline CLI

_pipeline_completion() {
    local cur prev
    COMPREPLY=()
    cur="${COMP_WORDS[COMP_CWORD]}"
    prev="${COMP_WORDS[COMP_CWORD-1]}"

    local commands="health process design test all batch render serve completion"
    local products="tshirt hoodie beanie"

    case "${prev}" in
        process|design)
            COMPREPLY=( $(compgen -W "${products}" -- ${cur}) )
            return 0
            ;;
        batch|render)
            COMPREPLY=( $(compgen -f -- ${cur}) )
            return 0
            ;;
        completion)
            COMPREPLY=( $(compgen -W "bash zsh" -- ${cur}) )
            return 0
            ;;
    esac

    if [[ ${COMP_CWORD} -eq 1 ]]; then
        COMPREPLY=( $(compgen -W "${commands}" -- ${cur}) )
    fi
}

complete -F _pipeline_completion pipeline
`

// ZshCompletion completes pipeline commands.
const ZshCompletion = `#compdef pipeline

_pipeline() {
    local -a commands
    commands=(
        'health:Run pipeline health check'
        'process:Process a product for Shopify'
        'design:Process a design upload'
        'test:Run the pipeline self-test suite'
        'all:Run all operations'
        'batch:Process products listed in a batch file'
        'render:Render a model in every catalog colour'
        'serve:Serve the HTTP API'
        'completion:Generate shell completion'
    )

    _arguments -C \
        '1: :->command' \
        '*::arg:->args'

    case $state in
        command)
            _describe 'command' commands
            ;;
        args)
            case $words[1] in
                process|design)
                    _values 'product' tshirt hoodie beanie
                    ;;
                batch|render)
                    _files
                    ;;
                completion)
                    _values 'shell' bash zsh
                    ;;
            esac
            ;;
    esac
}

_pipeline "$@"
`

// GenerateCompletion writes the completion script for shell to w.
func GenerateCompletion(w io.Writer, shell string) error {
	switch shell {
	case "bash":
		_, err := io.WriteString(w, BashCompletion)
		return err
	case "zsh":
		_, err := io.WriteString(w, ZshCompletion)
		return err
	default:
		return fmt.Errorf("unsupported shell: %s (supported: bash, zsh)", shell)
	}
}
